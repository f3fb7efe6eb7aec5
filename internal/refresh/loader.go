package refresh

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"phonograph/internal/library"
	"phonograph/internal/metrics"
)

// LoaderConfig wires the standard loader.
type LoaderConfig struct {
	Scanner   *library.Scanner
	Scan      library.Config
	Playlists library.PlaylistSource
	// RecentWindow is how far back the recently-added view reaches.
	RecentWindow time.Duration
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

// NewLoader returns a loader that scans the library, resolves stored
// playlists against the id map, and builds the recently-added view.
func NewLoader(cfg LoaderConfig) Loader {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger.With().Str("component", "loader").Logger()

	return func(ctx context.Context) (*Snapshot, error) {
		start := time.Now()
		res, err := cfg.Scanner.Scan(ctx, cfg.Scan)
		cfg.Metrics.ObserveScan(time.Since(start), err)
		if err != nil {
			return nil, err
		}
		cfg.Metrics.AddSkippedRows(res.SkippedRows)
		cfg.Metrics.SetLibrarySize(len(res.Songs), len(res.Albums))

		snap := &Snapshot{
			Result:        res,
			RecentlyAdded: library.NewRecentlyAdded(res.Songs, now().Add(-cfg.RecentWindow).Unix()),
		}

		if cfg.Playlists != nil {
			raw, err := cfg.Playlists.RawPlaylists(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "load playlists")
			}
			idMap := res.IDMap
			if idMap == nil {
				idMap = make(map[int64]*library.Song, len(res.Songs))
				for _, s := range res.Songs {
					idMap[s.ID] = s
				}
			}
			snap.Playlists = library.ResolvePlaylists(raw, idMap, func(p library.RawPlaylist, songID int64) {
				cfg.Metrics.PlaylistMemberDropped()
				logger.Warn().
					Interface("playlist_id", p.ID).
					Int64("song_id", songID).
					Msg("dropping playlist member that is no longer indexed")
			})
		}
		return snap, nil
	}
}
