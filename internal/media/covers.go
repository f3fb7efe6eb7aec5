package media

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"phonograph/internal/cache"
	"phonograph/internal/library"
	"phonograph/internal/metrics"
)

// CoverService loads cover images for songs and albums and keeps the bytes
// in an LRU cache.
type CoverService struct {
	cache   *cache.LRUCache[*Artwork]
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewCoverService(cacheCapacity int, cacheMaxSize int64, m *metrics.Metrics, logger zerolog.Logger) *CoverService {
	return &CoverService{
		cache: cache.NewLRUCache(cacheCapacity, cacheMaxSize, func(a *Artwork) int64 {
			return int64(len(a.Data))
		}),
		metrics: m,
		logger:  logger.With().Str("component", "covers").Logger(),
	}
}

// SongCover returns the embedded picture of a song.
func (s *CoverService) SongCover(song *library.Song) (*Artwork, error) {
	key := "song:" + strconv.FormatInt(song.ID, 10)
	return s.cached(key, func() (*Artwork, error) {
		return EmbeddedArt(song.Path)
	})
}

// AlbumCover returns the album's cover file when the scan resolved one,
// otherwise the first embedded picture among its songs.
func (s *CoverService) AlbumCover(album *library.Album) (*Artwork, error) {
	key := "album:unknown"
	if album.ID != nil {
		key = "album:" + strconv.FormatInt(*album.ID, 10)
	}
	return s.cached(key, func() (*Artwork, error) {
		if album.Cover != nil && strings.HasPrefix(*album.Cover, "file://") {
			art, err := readCoverFile(*album.Cover)
			if err == nil {
				return art, nil
			}
			s.logger.Debug().Err(err).Str("cover", *album.Cover).Msg("cover file unreadable, trying embedded art")
		}
		for _, song := range album.Songs {
			art, err := EmbeddedArt(song.Path)
			if err == nil {
				return art, nil
			}
		}
		return nil, ErrNoArtwork
	})
}

func (s *CoverService) cached(key string, load func() (*Artwork, error)) (*Artwork, error) {
	if art, ok := s.cache.Get(key); ok {
		s.metrics.CoverCacheLookup(true)
		return art, nil
	}
	s.metrics.CoverCacheLookup(false)

	art, err := load()
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, art)
	s.logger.Debug().Str("key", key).Int("size", len(art.Data)).Msg("cover loaded and cached")
	return art, nil
}

// Clear drops every cached cover, used when a new library snapshot arrives.
func (s *CoverService) Clear() {
	s.cache.Clear()
}

func (s *CoverService) CacheStats() (count int, size int64) {
	return s.cache.Len(), s.cache.Size()
}

func readCoverFile(uri string) (*Artwork, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parse cover uri")
	}
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, errors.Wrap(err, "read cover file")
	}
	return &Artwork{Data: data, MIMEType: GetContentType(u.Path)}, nil
}
