package valuation

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic valuation tasks: the catalog scan for
// newly issued collectibles and the valuation refresh of tracked ones.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	log     *slog.Logger
}

// NewScheduler creates a Scheduler running manager tasks on the given
// intervals.
func NewScheduler(
	m *Manager,
	scanInterval time.Duration,
	refreshInterval time.Duration,
	log *slog.Logger,
) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		manager: m,
		log:     log,
	}

	if _, err := c.AddFunc(
		"@every "+scanInterval.String(),
		s.runNewCollectibleScan,
	); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(
		"@every "+refreshInterval.String(),
		s.runRefresh,
	); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins running scheduled tasks.
func (s *Scheduler) Start() {
	s.log.Info("valuation scheduler started")
	s.cron.Start()
}

// Stop gracefully stops the scheduler, waiting for running jobs to
// finish.
func (s *Scheduler) Stop() context.Context {
	s.log.Info("valuation scheduler stopping")
	return s.cron.Stop()
}

// Entries returns the registered cron entries for inspection.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) runNewCollectibleScan() {
	ctx := context.Background()
	s.log.Info("scheduled new collectible scan starting")
	if err := s.manager.SyncNewCollectibles(ctx); err != nil {
		s.log.Error("scheduled new collectible scan failed", "error", err)
	}
}

func (s *Scheduler) runRefresh() {
	ctx := context.Background()
	s.log.Info("scheduled valuation refresh starting")
	if err := s.manager.RefreshCollectibles(ctx); err != nil {
		s.log.Error("scheduled valuation refresh failed", "error", err)
	}
}
