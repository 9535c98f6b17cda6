// Package registry owns the saved connection profiles and their status.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/store"
	"github.com/dracory/insightpilot/shared/types"
)

type entry struct {
	profile types.ConnectionProfile
	// rev changes whenever a connection field or the status is edited, so a
	// probe that started earlier can tell its result is stale.
	rev uint64
}

// Registry is the ordered, persisted collection of connection profiles.
// Every mutation holds the registry lock and is persisted before returning.
type Registry struct {
	mu     sync.RWMutex
	list   []entry
	store  store.Store
	logger *slog.Logger
	newID  func() string
}

// New restores the registry from st.
func New(st store.Store, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		store:  st,
		logger: logger,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	if err := r.restore(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) restore() error {
	raw, ok, err := r.store.Get(constants.StoreKeyConnections)
	if err != nil {
		return fmt.Errorf("load connections: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	var profiles []types.ConnectionProfile
	if err := json.Unmarshal(raw, &profiles); err != nil {
		return fmt.Errorf("decode connections: %w", err)
	}

	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.ID == "" || seen[p.ID] {
			r.logger.Warn("skipping stored connection with missing or duplicate id", "profile", p)
			continue
		}
		seen[p.ID] = true
		if p.Status == types.StatusTesting || !p.Status.Valid() {
			p.Status = types.StatusDisconnected
		}
		r.list = append(r.list, entry{profile: p})
	}
	r.logger.Debug("connections restored", "count", len(r.list))
	return nil
}

// Add creates a disconnected profile with a fresh id.
func (r *Registry) Add(in types.ProfileInput) (types.ConnectionProfile, error) {
	if err := in.Validate(); err != nil {
		return types.ConnectionProfile{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := types.ConnectionProfile{
		ID:       r.uniqueID(),
		Name:     in.Name,
		Kind:     in.Kind,
		Host:     in.Host,
		Port:     in.Port,
		Database: in.Database,
		Username: in.Username,
		Secret:   in.Secret,
		Status:   types.StatusDisconnected,
	}

	err := r.mutate(func() error {
		r.list = append(r.list, entry{profile: p})
		return nil
	})
	if err != nil {
		return types.ConnectionProfile{}, err
	}
	r.logger.Info("connection added", "profile", p)
	return p, nil
}

// Update merges patch into the profile. Touching a connection field resets
// the status to disconnected and invalidates any running probe.
func (r *Registry) Update(id string, patch types.ProfilePatch) (types.ConnectionProfile, error) {
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return types.ConnectionProfile{}, types.ErrValidation("unknown status: %q", *patch.Status)
		}
		if *patch.Status == types.StatusTesting {
			return types.ConnectionProfile{}, types.ErrValidation("status %q cannot be set directly", types.StatusTesting)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return types.ConnectionProfile{}, types.ErrNotFound("connection %q not found", id)
	}

	merged := patch.Apply(r.list[i].profile)
	// A status or name edit must succeed on a stored profile that no longer
	// validates, so the probe can mark it disconnected.
	rev := r.list[i].rev
	if patch.TouchesConnection() {
		if err := merged.Validate(); err != nil {
			return types.ConnectionProfile{}, err
		}
		if patch.Status == nil {
			merged.Status = types.StatusDisconnected
		}
		rev++
	}
	if patch.Status != nil {
		rev++
	}

	err := r.mutate(func() error {
		r.list[i] = entry{profile: merged, rev: rev}
		return nil
	})
	if err != nil {
		return types.ConnectionProfile{}, err
	}
	r.logger.Info("connection updated", "profile", merged)
	return merged, nil
}

// Delete removes the profile. Unknown ids are a no-op.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil
	}
	err := r.mutate(func() error {
		r.list = slices.Delete(r.list, i, i+1)
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("connection deleted", "id", id)
	return nil
}

// List returns every profile in insertion order.
func (r *Registry) List() []types.ConnectionProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ConnectionProfile, len(r.list))
	for i, e := range r.list {
		out[i] = e.profile
	}
	return out
}

// Get returns the profile with the given id.
func (r *Registry) Get(id string) (types.ConnectionProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i < 0 {
		return types.ConnectionProfile{}, types.ErrNotFound("connection %q not found", id)
	}
	return r.list[i].profile, nil
}

// BeginTest marks the profile as testing. It returns the profile to dial and
// the revision the probe result must be reported against.
func (r *Registry) BeginTest(id string) (types.ConnectionProfile, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return types.ConnectionProfile{}, 0, types.ErrNotFound("connection %q not found", id)
	}
	if r.list[i].profile.Status == types.StatusTesting {
		return types.ConnectionProfile{}, 0, types.ErrAlreadyInProgress("connection %q is already being tested", id)
	}

	e := r.list[i]
	e.profile.Status = types.StatusTesting
	e.rev++
	if err := r.mutate(func() error {
		r.list[i] = e
		return nil
	}); err != nil {
		return types.ConnectionProfile{}, 0, err
	}
	return e.profile, e.rev, nil
}

// FinishTest records a probe result. It is dropped, with applied false, when
// the profile was deleted or edited after BeginTest. Unlike other mutations a
// failed persist does not restore testing in memory: the status always leaves
// testing, and a stored testing status is reset on restore.
func (r *Registry) FinishTest(id string, rev uint64, ok bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 || r.list[i].rev != rev || r.list[i].profile.Status != types.StatusTesting {
		return false, nil
	}

	r.list[i].profile.Status = types.StatusDisconnected
	if ok {
		r.list[i].profile.Status = types.StatusConnected
	}
	if err := r.persist(); err != nil {
		r.logger.Error("persist connections", "error", err)
		return true, err
	}
	return true, nil
}

// SetStatus is an explicit status edit. Only the probe may set testing.
func (r *Registry) SetStatus(id string, status types.Status) error {
	_, err := r.Update(id, types.ProfilePatch{Status: &status})
	return err
}

// mutate applies fn and persists the result, restoring the previous list if
// either step fails. Callers hold r.mu.
func (r *Registry) mutate(fn func() error) error {
	prev := slices.Clone(r.list)
	if err := fn(); err != nil {
		r.list = prev
		return err
	}
	if err := r.persist(); err != nil {
		r.list = prev
		r.logger.Error("persist connections", "error", err)
		return err
	}
	return nil
}

func (r *Registry) persist() error {
	profiles := make([]types.ConnectionProfile, len(r.list))
	for i, e := range r.list {
		profiles[i] = e.profile
	}
	raw, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encode connections: %w", err)
	}
	if err := r.store.Set(constants.StoreKeyConnections, raw); err != nil {
		return fmt.Errorf("save connections: %w", err)
	}
	return nil
}

func (r *Registry) indexOf(id string) int {
	for i, e := range r.list {
		if e.profile.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) uniqueID() string {
	for {
		id := r.newID()
		if r.indexOf(id) < 0 {
			return id
		}
	}
}
