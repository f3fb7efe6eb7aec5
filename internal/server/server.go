package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"phonograph/internal/api"
	"phonograph/internal/config"
	"phonograph/internal/metrics"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	handler    *api.Handler
	metrics    *metrics.Metrics
}

func New(cfg *config.Config, logger zerolog.Logger, handler *api.Handler, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		metrics: m,
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoverMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handler.Health)

		r.Get("/library", s.handler.GetLibrary)
		r.Post("/library/index", s.handler.IndexLibrary)
		r.Post("/library/refresh", s.handler.RefreshLibrary)

		r.Get("/songs", s.handler.ListSongs)
		r.Get("/songs/{id}", s.handler.GetSong)
		r.Get("/songs/{id}/cover", s.handler.GetSongCover)
		r.Get("/songs/{id}/albumart", s.handler.GetSongCover)

		r.Get("/albums", s.handler.ListAlbums)
		r.Get("/albums/{id}", s.handler.GetAlbum)
		r.Get("/albums/{id}/cover", s.handler.GetAlbumCover)

		r.Get("/artists", s.handler.ListArtists)
		r.Get("/album-artists", s.handler.ListAlbumArtists)
		r.Get("/genres", s.handler.ListGenres)
		r.Get("/dates", s.handler.ListDates)

		r.Get("/playlists", s.handler.ListPlaylists)
		r.Get("/playlists/recent", s.handler.GetRecentlyAdded)
		r.Get("/playlists/{id}", s.handler.GetPlaylist)

		r.Get("/folders", s.handler.GetFolders)
		r.Get("/folders/shallow", s.handler.GetShallowFolders)
		r.Get("/folders/paths", s.handler.GetFolderPaths)
	})
}

// Router exposes the configured routes, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
