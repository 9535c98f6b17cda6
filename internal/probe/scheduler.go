package probe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler periodically re-tests connected profiles so a connection that
// went away is noticed before the next question fails.
type Scheduler struct {
	cron   *cron.Cron
	prober *Prober
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers the recheck job on the given cron spec.
func NewScheduler(prober *Prober, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(),
		prober: prober,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("probe schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	results := s.prober.RecheckConnected(s.ctx)
	lost := 0
	for _, ok := range results {
		if !ok {
			lost++
		}
	}
	s.logger.Info("scheduled connection recheck", "checked", len(results), "lost", lost)
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("probe scheduler started")
}

// Stop cancels running probes and waits for the current job to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("probe scheduler stopped")
}
