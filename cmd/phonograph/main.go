package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"phonograph/internal/api"
	"phonograph/internal/config"
	"phonograph/internal/library"
	"phonograph/internal/media"
	"phonograph/internal/metrics"
	"phonograph/internal/refresh"
	"phonograph/internal/server"
	"phonograph/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger := zerolog.New(os.Stderr)
		logger.Warn().Err(err).Msg("failed to load .env file")
	}

	app := cli.NewApp()
	app.Name = "phonograph"
	app.Usage = "Index a music collection and serve it as albums, artists, genres, folders and playlists"
	app.Version = api.Version
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to config file",
			EnvVars: []string{"PHONOGRAPH_CONFIG"},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "index the library roots and serve the library over HTTP",
			Action: serve,
		},
		{
			Name:   "index",
			Usage:  "run one index pass over the library roots and exit",
			Action: index,
		},
		{
			Name:  "scan",
			Usage: "rebuild the library from the index and print a summary",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "json", Usage: "print the summary as JSON"},
			},
			Action: scan,
		},
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Fatal().Err(err).Msg("phonograph failed")
	}
}

// env is everything the commands share.
type env struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *storage.SQLiteStorage
	metrics *metrics.Metrics
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)

	store, err := storage.NewSQLiteStorage(cfg.Database.Path, cfg.Library.Collation)
	if err != nil {
		return nil, errors.Wrap(err, "initialize storage")
	}

	return &env{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}, nil
}

func (e *env) indexer() *media.Indexer {
	var probe *media.MetadataExtractor
	if e.cfg.Index.ProbeDuration {
		probe = media.NewMetadataExtractor(e.logger)
	}
	return media.NewIndexer(e.store, probe, e.metrics, e.logger)
}

func (e *env) loader() refresh.Loader {
	perms := media.PathPermissions{
		AllowAudio:  e.cfg.Library.Permissions.Audio,
		AllowImages: e.cfg.Library.Permissions.Images,
		Database:    e.cfg.Database.Path,
		Roots:       e.cfg.Library.Roots,
	}
	return refresh.NewLoader(refresh.LoaderConfig{
		Scanner:      library.NewScanner(e.store, library.OSDirLister{}, perms, e.logger),
		Scan:         e.cfg.Scan(),
		Playlists:    e.store,
		RecentWindow: e.cfg.Library.RecentlyAddedWindow,
		Metrics:      e.metrics,
		Logger:       e.logger,
	})
}

func serve(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.store.Close()
	logger := e.logger

	logger.Info().
		Str("version", api.Version).
		Strs("roots", e.cfg.Library.Roots).
		Msg("starting phonograph server")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ix := e.indexer()
	covers := media.NewCoverService(e.cfg.Covers.CacheCapacity, e.cfg.Covers.CacheMaxSize, e.metrics, logger)

	orch := refresh.New(e.loader(), e.store.Watch(ctx), logger)
	go orch.Run(ctx)

	// The server stays subscribed so the library is kept current.
	go func() {
		for snap := range orch.Subscribe(ctx) {
			covers.Clear()
			logger.Info().
				Str("generation", snap.Generation.String()).
				Int("songs", len(snap.Result.Songs)).
				Int("playlists", len(snap.Playlists)).
				Msg("library snapshot published")
		}
	}()

	handler := api.NewHandler(orch, logger)
	handler.SetCovers(covers)
	handler.SetIndexer(ctx, ix, e.cfg.Library.Roots)

	if len(e.cfg.Library.Roots) > 0 {
		go func() {
			logger.Info().Msg("starting initial index pass")
			if _, err := ix.IndexRoots(ctx, e.cfg.Library.Roots); err != nil {
				logger.Error().Err(err).Msg("initial index pass failed")
			}
		}()

		if e.cfg.Index.Schedule != "" {
			sched, err := media.NewScheduler(ix, e.cfg.Library.Roots, e.cfg.Index.Schedule, logger)
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}
	} else {
		logger.Warn().Msg("no library roots configured, serving the existing index only")
	}

	srv := server.New(e.cfg, logger, handler, e.metrics)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("received shutdown signal")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		return errors.Wrap(err, "server error")
	}

	logger.Info().Msg("server stopped")
	return nil
}

func index(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.store.Close()

	if len(e.cfg.Library.Roots) == 0 {
		return errors.New("no library roots configured (library.roots or PHONOGRAPH_ROOTS)")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := e.indexer().IndexRoots(ctx, e.cfg.Library.Roots)
	if err != nil {
		return err
	}
	e.logger.Info().
		Int("indexed", summary.Indexed).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Int("removed", summary.Removed).
		Int("playlists", summary.Playlists).
		Dur("duration", summary.Duration).
		Msg("index pass finished")
	return nil
}

type scanSummary struct {
	Songs        int   `json:"songs"`
	Albums       int   `json:"albums"`
	Artists      int   `json:"artists"`
	AlbumArtists int   `json:"album_artists"`
	Genres       int   `json:"genres"`
	Dates        int   `json:"dates"`
	Playlists    int   `json:"playlists"`
	Recent       int   `json:"recently_added"`
	SkippedRows  int   `json:"skipped_rows"`
	DurationMS   int64 `json:"duration_ms"`
}

func scan(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.store.Close()

	start := time.Now()
	snap, err := e.loader()(c.Context)
	if err != nil {
		return err
	}
	res := snap.Result
	summary := scanSummary{
		Songs:        len(res.Songs),
		Albums:       len(res.Albums),
		Artists:      len(res.Artists),
		AlbumArtists: len(res.AlbumArtists),
		Genres:       len(res.Genres),
		Dates:        len(res.Dates),
		Playlists:    len(snap.Playlists),
		Recent:       len(snap.RecentlyAdded.Songs()),
		SkippedRows:  res.SkippedRows,
		DurationMS:   time.Since(start).Milliseconds(),
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	e.logger.Info().Interface("library", summary).Msg("scan finished")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}
