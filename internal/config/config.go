package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"phonograph/internal/library"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Library  LibraryConfig  `yaml:"library"`
	Index    IndexConfig    `yaml:"index"`
	Database DatabaseConfig `yaml:"database"`
	Covers   CoversConfig   `yaml:"covers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LibraryConfig struct {
	Roots                []string          `yaml:"roots"`
	MinDurationSeconds   int64             `yaml:"min_duration_seconds"`
	Blacklist            []string          `yaml:"blacklist"`
	IncludeExtraFormats  bool              `yaml:"include_extra_formats"`
	EnhancedCoverReading bool              `yaml:"enhanced_cover_reading"`
	RecentlyAddedWindow  time.Duration     `yaml:"recently_added_window"`
	Collation            string            `yaml:"collation"`
	ArtworkBase          string            `yaml:"artwork_base"`
	Build                BuildConfig       `yaml:"build"`
	Permissions          PermissionsConfig `yaml:"permissions"`
}

// BuildConfig selects the derived collections each scan builds.
type BuildConfig struct {
	Albums         bool `yaml:"albums"`
	Artists        bool `yaml:"artists"`
	AlbumArtists   bool `yaml:"album_artists"`
	Genres         bool `yaml:"genres"`
	Dates          bool `yaml:"dates"`
	IDMap          bool `yaml:"id_map"`
	Folders        bool `yaml:"folders"`
	ShallowFolders bool `yaml:"shallow_folders"`
	FolderPaths    bool `yaml:"folder_paths"`
}

type PermissionsConfig struct {
	Audio  bool `yaml:"audio"`
	Images bool `yaml:"images"`
}

type IndexConfig struct {
	// Schedule is a cron spec; empty disables periodic indexing.
	Schedule      string `yaml:"schedule"`
	ProbeDuration bool   `yaml:"probe_duration"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CoversConfig struct {
	CacheCapacity int   `yaml:"cache_capacity"`
	CacheMaxSize  int64 `yaml:"cache_max_size"` // bytes
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         6550,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Library: LibraryConfig{
			RecentlyAddedWindow: 14 * 24 * time.Hour,
			Collation:           "und",
			ArtworkBase:         "/api/v1/songs",
			Build: BuildConfig{
				Albums:         true,
				Artists:        true,
				AlbumArtists:   true,
				Genres:         true,
				Dates:          true,
				IDMap:          true,
				Folders:        true,
				ShallowFolders: true,
				FolderPaths:    true,
			},
			Permissions: PermissionsConfig{Audio: true, Images: true},
		},
		Index: IndexConfig{
			Schedule:      "@every 30m",
			ProbeDuration: true,
		},
		Database: DatabaseConfig{
			Path: "data/phonograph.db",
		},
		Covers: CoversConfig{
			CacheCapacity: 500,
			CacheMaxSize:  128 * 1024 * 1024, // 128 MB
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (a missing
// file is not an error) and then with PHONOGRAPH_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrap(err, "read config")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PHONOGRAPH_ROOTS"); ok {
		c.Library.Roots = splitList(v)
	}
	if v, ok := lookup("PHONOGRAPH_BLACKLIST"); ok {
		c.Library.Blacklist = splitList(v)
	}
	if v, ok := lookup("PHONOGRAPH_DATABASE"); ok {
		c.Database.Path = v
	}
	if v, ok := lookup("PHONOGRAPH_SCHEDULE"); ok {
		c.Index.Schedule = v
	}
	if v, ok := lookup("PHONOGRAPH_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("PHONOGRAPH_COLLATION"); ok {
		c.Library.Collation = v
	}
	if v, ok := lookup("PHONOGRAPH_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "PHONOGRAPH_PORT")
		}
		c.Server.Port = port
	}
	if v, ok := lookup("PHONOGRAPH_MIN_DURATION"); ok {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "PHONOGRAPH_MIN_DURATION")
		}
		c.Library.MinDurationSeconds = secs
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range filepath.SplitList(v) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports inconsistent settings before anything is started.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path must be set")
	}
	if c.Covers.CacheCapacity <= 0 || c.Covers.CacheMaxSize <= 0 {
		return errors.New("covers cache capacity and size must be positive")
	}
	if c.Library.RecentlyAddedWindow < 0 {
		return errors.New("library.recently_added_window must not be negative")
	}
	return c.Scan().Validate()
}

// Scan maps the library section onto a scan configuration.
func (c *Config) Scan() library.Config {
	b := c.Library.Build
	return library.Config{
		MinDurationSeconds:   c.Library.MinDurationSeconds,
		Blacklist:            c.Library.Blacklist,
		IncludeExtraFormats:  c.Library.IncludeExtraFormats,
		EnhancedCoverReading: c.Library.EnhancedCoverReading,
		ArtworkBase:          c.Library.ArtworkBase,
		Build: library.Collections{
			Albums:         b.Albums,
			Artists:        b.Artists,
			AlbumArtists:   b.AlbumArtists,
			Genres:         b.Genres,
			Dates:          b.Dates,
			IDMap:          b.IDMap,
			Folders:        b.Folders,
			ShallowFolders: b.ShallowFolders,
			FolderPaths:    b.FolderPaths,
		},
	}
}
