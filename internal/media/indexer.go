package media

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"phonograph/internal/library"
	"phonograph/internal/metrics"
	"phonograph/internal/storage"
)

// ErrIndexInProgress is returned when an index pass is already running.
var ErrIndexInProgress = errors.New("index pass already in progress")

type IndexSummary struct {
	Indexed          int           `json:"indexed"`
	Unchanged        int           `json:"unchanged"`
	Failed           int           `json:"failed"`
	Removed          int           `json:"removed"`
	Playlists        int           `json:"playlists"`
	RemovedPlaylists int           `json:"removed_playlists"`
	Duration         time.Duration `json:"duration"`
}

// Indexer walks library roots and keeps the media index in sync with the
// files found there.
type Indexer struct {
	storage  *storage.SQLiteStorage
	probe    *MetadataExtractor
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	indexing bool
	mu       sync.Mutex
}

// NewIndexer creates an indexer. probe may be nil, or unavailable at
// runtime, in which case durations stay unknown.
func NewIndexer(store *storage.SQLiteStorage, probe *MetadataExtractor, m *metrics.Metrics, logger zerolog.Logger) *Indexer {
	if probe != nil && !probe.IsAvailable() {
		logger.Warn().Msg("ffprobe not found, song durations will be unknown")
		probe = nil
	}
	return &Indexer{
		storage: store,
		probe:   probe,
		metrics: m,
		logger:  logger.With().Str("component", "indexer").Logger(),
	}
}

func (ix *Indexer) IsIndexing() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.indexing
}

// IndexRoots runs one index pass over roots. Only one pass runs at a time;
// a concurrent call returns ErrIndexInProgress.
func (ix *Indexer) IndexRoots(ctx context.Context, roots []string) (*IndexSummary, error) {
	ix.mu.Lock()
	if ix.indexing {
		ix.mu.Unlock()
		return nil, ErrIndexInProgress
	}
	ix.indexing = true
	ix.mu.Unlock()

	defer func() {
		ix.mu.Lock()
		ix.indexing = false
		ix.mu.Unlock()
	}()

	sum, err := ix.index(ctx, roots)
	ix.metrics.ObserveIndexRun(err)
	return sum, err
}

func (ix *Indexer) index(ctx context.Context, roots []string) (*IndexSummary, error) {
	start := time.Now()
	sum := &IndexSummary{}

	removed, removedPlaylists, err := ix.CleanupDeleted(ctx)
	if err != nil {
		ix.logger.Warn().Err(err).Msg("cleanup failed, continuing with index")
	}
	sum.Removed, sum.RemovedPlaylists = removed, removedPlaylists

	var playlists []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			ix.logger.Warn().Err(err).Str("root", root).Msg("library root is not a readable directory")
			continue
		}

		ix.logger.Info().Str("root", root).Msg("indexing library root")
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				ix.logger.Warn().Err(walkErr).Str("path", path).Msg("skipping unreadable entry")
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}

			switch {
			case IsPlaylistFile(d.Name()):
				playlists = append(playlists, path)
			case IsSupportedAudio(d.Name()):
				changed, err := ix.indexFile(ctx, path, d)
				switch {
				case err != nil:
					sum.Failed++
					ix.logger.Error().Err(err).Str("path", path).Msg("failed to index audio file")
				case changed:
					sum.Indexed++
				default:
					sum.Unchanged++
				}
			}
			return nil
		})
		if err != nil {
			return sum, errors.Wrapf(err, "walk %s", root)
		}
	}

	if len(playlists) > 0 {
		n, err := ix.indexPlaylists(ctx, playlists, sum.Indexed+sum.Removed > 0)
		if err != nil {
			return sum, err
		}
		sum.Playlists = n
	}

	if sum.Indexed+sum.Removed > 0 {
		ix.storage.NotifyChanged(library.ChangeAudio)
	}
	if sum.Playlists+sum.RemovedPlaylists > 0 {
		ix.storage.NotifyChanged(library.ChangePlaylists)
	}

	sum.Duration = time.Since(start)
	ix.logger.Info().
		Int("indexed", sum.Indexed).
		Int("unchanged", sum.Unchanged).
		Int("failed", sum.Failed).
		Int("removed", sum.Removed).
		Int("playlists", sum.Playlists).
		Dur("duration", sum.Duration).
		Msg("index pass completed")
	return sum, nil
}

// indexFile upserts one audio file. It reports false when the stored row is
// already current.
func (ix *Indexer) indexFile(ctx context.Context, path string, d fs.DirEntry) (bool, error) {
	info, err := d.Info()
	if err != nil {
		return false, errors.Wrap(err, "stat audio file")
	}
	current, err := ix.storage.IsAudioCurrent(ctx, path, info.Size(), info.ModTime())
	if err != nil {
		return false, err
	}
	if current {
		return false, nil
	}

	mimeType, music, _ := AudioFormat(path)
	rec := &storage.AudioRecord{
		Path:       path,
		MimeType:   mimeType,
		IsMusic:    music,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}

	tags, err := ReadTags(path)
	if err != nil {
		ix.logger.Debug().Err(err).Str("path", path).Msg("no readable tags")
		tags = &Tags{}
	}
	applyTags(rec, tags)

	if ix.probe != nil {
		if meta, err := ix.probe.Extract(ctx, path); err == nil && meta.Duration > 0 {
			rec.Duration = &meta.Duration
		}
	}

	if _, err := ix.storage.UpsertAudio(ctx, rec); err != nil {
		return false, err
	}
	ix.logger.Debug().Str("path", path).Str("title", rec.Title).Msg("indexed audio file")
	return true, nil
}

func applyTags(rec *storage.AudioRecord, t *Tags) {
	rec.Title = t.Title
	if rec.Title == "" {
		rec.Title = strings.TrimSuffix(filepath.Base(rec.Path), filepath.Ext(rec.Path))
	}
	rec.Artist = nonEmpty(t.Artist)
	rec.Album = nonEmpty(t.Album)
	rec.AlbumArtist = nonEmpty(t.AlbumArtist)
	rec.Composer = nonEmpty(t.Composer)
	rec.Genre = nonEmpty(t.Genre)
	rec.AlbumKey = t.AlbumArtist
	if rec.AlbumKey == "" {
		rec.AlbumKey = filepath.Dir(rec.Path)
	}
	if t.Year > 0 {
		rec.Year = &t.Year
	}
	if t.Disc > 0 {
		rec.Disc = &t.Disc
	}
	// The track column packs the disc number as disc*1000+track.
	if t.Track > 0 {
		track := t.Track
		if t.Disc > 0 && track < 1000 {
			track += t.Disc * 1000
		}
		rec.Track = &track
	}
	if t.Compilation {
		one := "1"
		rec.Compilation = &one
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// indexPlaylists stores every playlist file whose content may have changed.
// When audio rows changed, all playlists are re-resolved.
func (ix *Indexer) indexPlaylists(ctx context.Context, paths []string, audioChanged bool) (int, error) {
	ids, err := ix.storage.AudioIDsByPath(ctx)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			ix.logger.Warn().Err(err).Str("path", path).Msg("failed to stat playlist")
			continue
		}
		if !audioChanged {
			current, err := ix.storage.IsPlaylistCurrent(ctx, path, info.ModTime())
			if err != nil {
				return stored, err
			}
			if current {
				continue
			}
		}

		entries, err := ParseM3U(path)
		if err != nil {
			ix.logger.Warn().Err(err).Str("path", path).Msg("failed to parse playlist")
			continue
		}
		rec := &storage.PlaylistRecord{
			Name:       playlistName(path),
			Path:       path,
			ModifiedAt: info.ModTime(),
		}
		for _, entry := range entries {
			if id, ok := ids[entry]; ok {
				rec.SongIDs = append(rec.SongIDs, id)
			} else {
				ix.logger.Debug().Str("playlist", path).Str("entry", entry).Msg("playlist entry is not indexed")
			}
		}
		if _, err := ix.storage.UpsertPlaylist(ctx, rec); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// CleanupDeleted removes index rows whose files no longer exist.
func (ix *Indexer) CleanupDeleted(ctx context.Context) (audio, playlists int, err error) {
	audioPaths, err := ix.storage.GetAllAudioPaths(ctx)
	if err != nil {
		return 0, 0, err
	}
	for id, path := range audioPaths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		if err := ix.storage.DeleteAudio(ctx, id); err != nil {
			ix.logger.Error().Err(err).Str("path", path).Msg("failed to delete audio row")
			continue
		}
		audio++
		ix.logger.Debug().Str("path", path).Msg("deleted missing audio file")
	}

	playlistPaths, err := ix.storage.GetAllPlaylistPaths(ctx)
	if err != nil {
		return audio, 0, err
	}
	for id, path := range playlistPaths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		if err := ix.storage.DeletePlaylist(ctx, id); err != nil {
			ix.logger.Error().Err(err).Str("path", path).Msg("failed to delete playlist")
			continue
		}
		playlists++
	}

	if audio > 0 {
		if err := ix.storage.DeleteOrphans(ctx); err != nil {
			return audio, playlists, err
		}
	}
	if audio > 0 || playlists > 0 {
		ix.logger.Info().
			Int("audio", audio).
			Int("playlists", playlists).
			Msg("cleanup completed")
	}
	return audio, playlists, nil
}
