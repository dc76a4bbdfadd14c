// Package schedule runs crawls on a cron schedule.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"car-market/internal/crawler"
)

// RunFunc performs one crawl.
type RunFunc func(ctx context.Context) (*crawler.Summary, error)

// Scheduler wraps a cron runner around a crawl function.
type Scheduler struct {
	cron *cron.Cron
	run  RunFunc
	log  zerolog.Logger
}

// New creates a scheduler for the given crawl function.
func New(run RunFunc, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		run:  run,
		log:  log.With().Str("component", "schedule").Logger(),
	}
}

// Start registers the cron expression and begins ticking. Overlapping runs
// are skipped, not queued.
func (s *Scheduler) Start(spec string) error {
	running := make(chan struct{}, 1)

	_, err := s.cron.AddFunc(spec, func() {
		select {
		case running <- struct{}{}:
			defer func() { <-running }()
		default:
			s.log.Warn().Msg("previous crawl still running, skipping")
			return
		}

		s.log.Info().Msg("scheduled crawl starting")
		summary, err := s.run(context.Background())
		if err != nil {
			s.log.Error().Err(err).Msg("scheduled crawl failed")
			return
		}
		s.log.Info().
			Int("total", summary.Total).
			Int("new", summary.New).
			Int("updated", summary.Updated).
			Msg("scheduled crawl finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
