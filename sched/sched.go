// Package sched runs scheduled scrapes on a cron expression evaluated
// in the portal's local timezone.
package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"philgeps-scraper/config"
	"philgeps-scraper/models"
)

// RunFunc executes one scrape run end to end.
type RunFunc func(ctx context.Context) (*models.ScrapeResult, error)

// Scheduler triggers scrape runs on a fixed schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// New builds a scheduler from the configured cron spec and timezone.
func New(cfg *config.Config, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithLocation(location))
	_, err = c.AddFunc(cfg.CronSpec, func() {
		logger.Info("scheduled scrape starting", slog.String("spec", cfg.CronSpec))
		result, err := run(context.Background())
		if err != nil {
			logger.Error("scheduled scrape failed", slog.Any("error", err))
			return
		}
		logger.Info("scheduled scrape finished",
			slog.Bool("success", result.Success),
			slog.Int("total_bids", result.TotalBids))
	})
	if err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, log: logger}, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
