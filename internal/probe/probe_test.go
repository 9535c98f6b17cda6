package probe_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dracory/insightpilot/internal/probe"
	"github.com/dracory/insightpilot/internal/registry"
	"github.com/dracory/insightpilot/internal/resultset"
	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/driver"
	"github.com/dracory/insightpilot/shared/store"
	"github.com/dracory/insightpilot/shared/types"
)

type fakeHandle struct{}

func (fakeHandle) Execute(context.Context, string) (*resultset.ResultSet, error) {
	return resultset.Empty(), nil
}
func (fakeHandle) Tables(context.Context) ([]string, error) { return nil, nil }
func (fakeHandle) Close() error                             { return nil }

type fakeDriver struct {
	calls   atomic.Int32
	connect func(ctx context.Context, p types.ConnectionProfile) error
}

func (d *fakeDriver) Connect(ctx context.Context, p types.ConnectionProfile) (driver.Handle, error) {
	d.calls.Add(1)
	if d.connect != nil {
		if err := d.connect(ctx, p); err != nil {
			return nil, err
		}
	}
	return fakeHandle{}, nil
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(store.NewMemory(), nil)
	require.NoError(t, err)
	return reg
}

func addProfile(t *testing.T, reg *registry.Registry, host string) types.ConnectionProfile {
	t.Helper()
	p, err := reg.Add(types.ProfileInput{
		Name:     host,
		Kind:     types.BackendPostgreSQL,
		Host:     host,
		Port:     5432,
		Database: "app",
		Username: "u",
		Secret:   "s",
	})
	require.NoError(t, err)
	return p
}

func status(t *testing.T, reg *registry.Registry, id string) types.Status {
	t.Helper()
	p, err := reg.Get(id)
	require.NoError(t, err)
	return p.Status
}

func TestTest_Success(t *testing.T) {
	reg := newRegistry(t)
	p := addProfile(t, reg, "ok")
	prober := probe.New(reg, &fakeDriver{}, probe.Options{})

	ok, err := prober.Test(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.StatusConnected, status(t, reg, p.ID))
}

func TestTest_DialsProfileReadAtBegin(t *testing.T) {
	reg := newRegistry(t)
	p := addProfile(t, reg, "snap")
	var dialed types.ConnectionProfile
	drv := &fakeDriver{connect: func(_ context.Context, got types.ConnectionProfile) error {
		dialed = got
		return nil
	}}

	ok, err := probe.New(reg, drv, probe.Options{}).Test(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, p.Host, dialed.Host)
	assert.Equal(t, types.StatusTesting, dialed.Status)
}

func TestTest_Failure(t *testing.T) {
	reg := newRegistry(t)
	p := addProfile(t, reg, "down")
	cause := errors.New("password authentication failed")
	drv := &fakeDriver{connect: func(context.Context, types.ConnectionProfile) error { return cause }}
	prober := probe.New(reg, drv, probe.Options{})

	ok, err := prober.Test(context.Background(), p.ID)
	assert.False(t, ok)
	var bee *types.BackendExecutionError
	require.True(t, errors.As(err, &bee))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, types.StatusDisconnected, status(t, reg, p.ID))
}

func TestTest_InvalidProfileDoesNoIO(t *testing.T) {
	st := store.NewMemory()
	raw, err := json.Marshal([]types.ConnectionProfile{{
		ID: "bad", Kind: types.BackendMySQL, Port: 3306, Database: "d", Username: "u", Secret: "s",
		Status: types.StatusConnected,
	}})
	require.NoError(t, err)
	require.NoError(t, st.Set(constants.StoreKeyConnections, raw))
	reg, err := registry.New(st, nil)
	require.NoError(t, err)

	drv := &fakeDriver{}
	prober := probe.New(reg, drv, probe.Options{})

	ok, err := prober.Test(context.Background(), "bad")
	assert.False(t, ok)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, int32(0), drv.calls.Load())
	assert.Equal(t, types.StatusDisconnected, status(t, reg, "bad"))
}

func TestTest_UnknownProfile(t *testing.T) {
	prober := probe.New(newRegistry(t), &fakeDriver{}, probe.Options{})
	_, err := prober.Test(context.Background(), "missing")
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func blockingDriver(release <-chan struct{}) *fakeDriver {
	return &fakeDriver{connect: func(ctx context.Context, _ types.ConnectionProfile) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
}

func TestTest_Timeout(t *testing.T) {
	reg := newRegistry(t)
	p := addProfile(t, reg, "slow")
	prober := probe.New(reg, blockingDriver(nil), probe.Options{Timeout: 20 * time.Millisecond})

	ok, err := prober.Test(context.Background(), p.ID)
	assert.False(t, ok)
	var bee *types.BackendExecutionError
	require.True(t, errors.As(err, &bee))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.StatusDisconnected, status(t, reg, p.ID))
}

func TestTest_RejectsConcurrentTestOfSameProfile(t *testing.T) {
	reg := newRegistry(t)
	p := addProfile(t, reg, "busy")
	release := make(chan struct{})
	prober := probe.New(reg, blockingDriver(release), probe.Options{Timeout: 5 * time.Second})

	done := make(chan bool)
	go func() {
		ok, _ := prober.Test(context.Background(), p.ID)
		done <- ok
	}()
	require.Eventually(t, func() bool { return status(t, reg, p.ID) == types.StatusTesting }, time.Second, 5*time.Millisecond)

	ok, err := prober.Test(context.Background(), p.ID)
	assert.False(t, ok)
	var inProgress *types.AlreadyInProgressError
	require.True(t, errors.As(err, &inProgress))
	assert.Equal(t, types.StatusTesting, status(t, reg, p.ID), "rejected test must not touch status")

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, types.StatusConnected, status(t, reg, p.ID))
}

func TestCancel(t *testing.T) {
	reg := newRegistry(t)
	p := addProfile(t, reg, "cancel")
	prober := probe.New(reg, blockingDriver(nil), probe.Options{Timeout: 5 * time.Second})

	assert.False(t, prober.Cancel(p.ID))

	errCh := make(chan error)
	go func() {
		_, err := prober.Test(context.Background(), p.ID)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return prober.InProgress(p.ID) }, time.Second, 5*time.Millisecond)

	assert.True(t, prober.Cancel(p.ID))
	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StatusDisconnected, status(t, reg, p.ID))
	assert.False(t, prober.InProgress(p.ID))
}

func TestTest_EditDuringProbeWins(t *testing.T) {
	reg := newRegistry(t)
	p := addProfile(t, reg, "edit")
	release := make(chan struct{})
	prober := probe.New(reg, blockingDriver(release), probe.Options{Timeout: 5 * time.Second})

	done := make(chan struct{})
	go func() {
		_, _ = prober.Test(context.Background(), p.ID)
		close(done)
	}()
	require.Eventually(t, func() bool { return status(t, reg, p.ID) == types.StatusTesting }, time.Second, 5*time.Millisecond)

	host := "elsewhere"
	_, err := reg.Update(p.ID, types.ProfilePatch{Host: &host})
	require.NoError(t, err)

	close(release)
	<-done
	assert.Equal(t, types.StatusDisconnected, status(t, reg, p.ID), "stale probe result must not overwrite the edit")
}

func TestTestAll(t *testing.T) {
	reg := newRegistry(t)
	good1 := addProfile(t, reg, "good1")
	good2 := addProfile(t, reg, "good2")
	bad := addProfile(t, reg, "bad")

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	drv := &fakeDriver{connect: func(_ context.Context, p types.ConnectionProfile) error {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		if p.Host == "bad" {
			return errors.New("refused")
		}
		return nil
	}}
	prober := probe.New(reg, drv, probe.Options{Parallelism: 2})

	results := prober.TestAll(context.Background())
	assert.Equal(t, map[string]bool{good1.ID: true, good2.ID: true, bad.ID: false}, results)
	assert.LessOrEqual(t, peak, 2)

	for _, p := range reg.List() {
		assert.NotEqual(t, types.StatusTesting, p.Status)
	}
}

func TestRecheckConnected(t *testing.T) {
	reg := newRegistry(t)
	connected := addProfile(t, reg, "up")
	idle := addProfile(t, reg, "idle")
	require.NoError(t, reg.SetStatus(connected.ID, types.StatusConnected))

	drv := &fakeDriver{connect: func(context.Context, types.ConnectionProfile) error { return errors.New("gone") }}
	prober := probe.New(reg, drv, probe.Options{})

	results := prober.RecheckConnected(context.Background())
	assert.Equal(t, map[string]bool{connected.ID: false}, results)
	assert.Equal(t, types.StatusDisconnected, status(t, reg, connected.ID))
	assert.Equal(t, types.StatusDisconnected, status(t, reg, idle.ID))
	assert.Equal(t, int32(1), drv.calls.Load())
}

func TestNewScheduler(t *testing.T) {
	prober := probe.New(newRegistry(t), &fakeDriver{}, probe.Options{})

	_, err := probe.NewScheduler(prober, "not a schedule", nil)
	assert.Error(t, err)

	s, err := probe.NewScheduler(prober, "@every 1h", nil)
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
