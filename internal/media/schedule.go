package media

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler re-indexes the library roots on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	indexer *Indexer
	roots   []string
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler parses spec (standard cron syntax or descriptors such as
// "@every 30m").
func NewScheduler(indexer *Indexer, roots []string, spec string, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "scheduler").Logger()
	s := &Scheduler{
		indexer: indexer,
		roots:   roots,
		logger:  logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(&logger)),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, errors.Wrapf(err, "parse index schedule %q", spec)
	}
	return s, nil
}

func (s *Scheduler) run() {
	_, err := s.indexer.IndexRoots(s.ctx, s.roots)
	switch {
	case errors.Is(err, ErrIndexInProgress):
		s.logger.Debug().Msg("scheduled index skipped, pass already running")
	case err != nil:
		s.logger.Error().Err(err).Msg("scheduled index failed")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("entries", len(s.cron.Entries())).Msg("index schedule started")
}

// Stop stops the schedule, cancels a running pass, and waits for it to end.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
