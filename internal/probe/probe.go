// Package probe tests connectivity of saved profiles and records the outcome
// in the registry.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dracory/insightpilot/internal/observability"
	"github.com/dracory/insightpilot/internal/registry"
	"github.com/dracory/insightpilot/shared/driver"
	"github.com/dracory/insightpilot/shared/types"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultParallelism = 4
)

// Options configures a Prober.
type Options struct {
	Timeout     time.Duration
	Parallelism int
	Logger      *slog.Logger
}

// Prober runs connectivity tests. Tests of different profiles run
// concurrently; a second test of a profile already under test is rejected.
type Prober struct {
	reg    *registry.Registry
	drv    driver.Driver
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// New creates a Prober.
func New(reg *registry.Registry, drv driver.Driver, opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		reg:      reg,
		drv:      drv,
		opts:     opts,
		logger:   logger,
		inflight: map[string]context.CancelFunc{},
	}
}

// Test validates the profile and, when valid, opens and pings a connection.
// The profile ends connected on success and disconnected otherwise.
func (p *Prober) Test(ctx context.Context, id string) (bool, error) {
	profile, err := p.reg.Get(id)
	if err != nil {
		return false, err
	}

	if err := profile.Validate(); err != nil {
		if serr := p.reg.SetStatus(id, types.StatusDisconnected); serr != nil {
			p.logger.Warn("reset status of invalid profile", "id", id, "error", serr)
		}
		observability.RecordProbe(observability.OutcomeInvalid)
		return false, err
	}

	p.mu.Lock()
	if _, busy := p.inflight[id]; busy {
		p.mu.Unlock()
		observability.RecordProbe(observability.OutcomeRejected)
		return false, types.ErrAlreadyInProgress("connection %q is already being tested", id)
	}
	testCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	p.inflight[id] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inflight, id)
		p.mu.Unlock()
		cancel()
	}()

	// Dial the fields current at BeginTest; the revision covers later edits.
	profile, rev, err := p.reg.BeginTest(id)
	if err != nil {
		return false, err
	}
	if err := profile.Validate(); err != nil {
		if _, ferr := p.reg.FinishTest(id, rev, false); ferr != nil {
			p.logger.Error("record probe result", "id", id, "error", ferr)
		}
		observability.RecordProbe(observability.OutcomeInvalid)
		return false, err
	}

	start := time.Now()
	connErr := p.connect(testCtx, profile)
	ok := connErr == nil

	applied, ferr := p.reg.FinishTest(id, rev, ok)
	if ferr != nil {
		p.logger.Error("record probe result", "id", id, "error", ferr)
	}
	if !applied && ferr == nil {
		p.logger.Info("probe result dropped, profile changed during test", "id", id)
	}

	if ok {
		observability.RecordProbe(observability.OutcomeConnected)
		p.logger.Info("connection test succeeded", "profile", profile, "duration", time.Since(start))
		return true, nil
	}

	observability.RecordProbe(observability.OutcomeDisconnected)
	p.logger.Info("connection test failed", "profile", profile, "duration", time.Since(start), "error", connErr)
	switch {
	case errors.Is(testCtx.Err(), context.DeadlineExceeded):
		return false, types.ErrBackendExecution(connErr, "connection test timed out after %s", p.opts.Timeout)
	case errors.Is(testCtx.Err(), context.Canceled):
		return false, types.ErrBackendExecution(connErr, "connection test cancelled")
	default:
		return false, types.ErrBackendExecution(connErr, "connection test failed")
	}
}

func (p *Prober) connect(ctx context.Context, profile types.ConnectionProfile) error {
	h, err := p.drv.Connect(ctx, profile)
	if err != nil {
		return err
	}
	if err := h.Close(); err != nil {
		p.logger.Debug("close probe connection", "id", profile.ID, "error", err)
	}
	return nil
}

// Cancel aborts a running test of the profile. It reports whether one was running.
func (p *Prober) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.inflight[id]
	if ok {
		cancel()
	}
	return ok
}

// InProgress reports whether the profile is being tested by this prober.
func (p *Prober) InProgress(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[id]
	return ok
}

// TestAll tests every profile with bounded concurrency and returns the
// outcome per profile id.
func (p *Prober) TestAll(ctx context.Context) map[string]bool {
	return p.testWhere(ctx, func(types.ConnectionProfile) bool { return true })
}

// RecheckConnected re-tests the profiles currently marked connected.
func (p *Prober) RecheckConnected(ctx context.Context) map[string]bool {
	return p.testWhere(ctx, func(profile types.ConnectionProfile) bool {
		return profile.Status == types.StatusConnected
	})
}

func (p *Prober) testWhere(ctx context.Context, keep func(types.ConnectionProfile) bool) map[string]bool {
	var (
		mu      sync.Mutex
		results = map[string]bool{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallelism)

	for _, profile := range p.reg.List() {
		if !keep(profile) {
			continue
		}
		g.Go(func() error {
			ok, err := p.Test(gctx, profile.ID)
			if err != nil {
				p.logger.Debug("probe", "id", profile.ID, "error", err)
			}
			mu.Lock()
			results[profile.ID] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
