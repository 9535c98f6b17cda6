package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dracory/insightpilot/shared/constants"
	"github.com/dracory/insightpilot/shared/store"
	"github.com/dracory/insightpilot/shared/types"
)

type countingStore struct {
	*store.Memory
	mu   sync.Mutex
	sets int
	fail bool
}

func (s *countingStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.sets++
	return s.Memory.Set(key, value)
}

func newTestRegistry(t *testing.T) (*Registry, *countingStore) {
	t.Helper()
	st := &countingStore{Memory: store.NewMemory()}
	r, err := New(st, nil)
	require.NoError(t, err)
	return r, st
}

func input(name string) types.ProfileInput {
	return types.ProfileInput{
		Name:     name,
		Kind:     types.BackendMySQL,
		Host:     "localhost",
		Port:     3306,
		Database: "shop",
		Username: "root",
		Secret:   "pw",
	}
}

func TestAddThenList(t *testing.T) {
	r, st := newTestRegistry(t)

	p, err := r.Add(input("first"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, types.StatusDisconnected, p.Status)

	_, err = r.Add(input("second"))
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
	assert.Equal(t, 2, st.sets)

	raw, ok, err := st.Get(constants.StoreKeyConnections)
	require.NoError(t, err)
	require.True(t, ok)
	var stored []types.ConnectionProfile
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Len(t, stored, 2)
}

func TestAdd_Validation(t *testing.T) {
	r, st := newTestRegistry(t)

	in := input("bad")
	in.Host = ""
	_, err := r.Add(in)

	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, r.List())
	assert.Equal(t, 0, st.sets)
}

func TestAdd_RegeneratesCollidingID(t *testing.T) {
	r, _ := newTestRegistry(t)
	ids := []string{"a", "a", "b"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	p1, err := r.Add(input("one"))
	require.NoError(t, err)
	p2, err := r.Add(input("two"))
	require.NoError(t, err)

	assert.Equal(t, "a", p1.ID)
	assert.Equal(t, "b", p2.ID)
}

func TestUpdate(t *testing.T) {
	r, _ := newTestRegistry(t)
	p, err := r.Add(input("one"))
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(p.ID, types.StatusConnected))

	name := "renamed"
	got, err := r.Update(p.ID, types.ProfilePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, types.StatusConnected, got.Status, "renaming keeps the status")

	host := "db2"
	got, err = r.Update(p.ID, types.ProfilePatch{Host: &host})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDisconnected, got.Status, "changing the host resets the status")

	empty := ""
	_, err = r.Update(p.ID, types.ProfilePatch{Database: &empty})
	var verr *types.ValidationError
	assert.True(t, errors.As(err, &verr))

	statusTesting := types.StatusTesting
	_, err = r.Update(p.ID, types.ProfilePatch{Status: &statusTesting})
	assert.True(t, errors.As(err, &verr))

	_, err = r.Update("missing", types.ProfilePatch{Name: &name})
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestDelete(t *testing.T) {
	r, st := newTestRegistry(t)
	p, err := r.Add(input("one"))
	require.NoError(t, err)
	setsBefore := st.sets

	require.NoError(t, r.Delete("nonexistent"))
	assert.Len(t, r.List(), 1)
	assert.Equal(t, setsBefore, st.sets, "unknown id must not persist")

	require.NoError(t, r.Delete(p.ID))
	assert.Empty(t, r.List())
	require.NoError(t, r.Delete(p.ID))

	_, err = r.Get(p.ID)
	var nf *types.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestPersistFailureRollsBack(t *testing.T) {
	r, st := newTestRegistry(t)
	p, err := r.Add(input("one"))
	require.NoError(t, err)

	st.fail = true

	_, err = r.Add(input("two"))
	assert.Error(t, err)
	assert.Len(t, r.List(), 1)

	name := "x"
	_, err = r.Update(p.ID, types.ProfilePatch{Name: &name})
	assert.Error(t, err)
	got, err := r.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Name)

	assert.Error(t, r.Delete(p.ID))
	assert.Len(t, r.List(), 1)
}

func TestRestore(t *testing.T) {
	st := store.NewMemory()
	stored := []types.ConnectionProfile{
		{ID: "1", Name: "a", Kind: types.BackendPostgreSQL, Status: types.StatusTesting},
		{ID: "2", Name: "b", Kind: types.BackendMySQL, Status: types.StatusConnected},
		{ID: "2", Name: "dup", Kind: types.BackendMySQL},
	}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, st.Set(constants.StoreKeyConnections, raw))

	r, err := New(st, nil)
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, types.StatusDisconnected, list[0].Status)
	assert.Equal(t, types.StatusConnected, list[1].Status)
	assert.Equal(t, "b", list[1].Name)
}

func TestRestore_Corrupt(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Set(constants.StoreKeyConnections, []byte("{not json")))
	_, err := New(st, nil)
	assert.Error(t, err)
}

func TestBeginFinishTest(t *testing.T) {
	r, _ := newTestRegistry(t)
	p, err := r.Add(input("one"))
	require.NoError(t, err)

	snapshot, rev, err := r.BeginTest(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Host, snapshot.Host)
	assert.Equal(t, types.StatusTesting, snapshot.Status)
	got, _ := r.Get(p.ID)
	assert.Equal(t, types.StatusTesting, got.Status)

	_, _, err = r.BeginTest(p.ID)
	var inProgress *types.AlreadyInProgressError
	assert.True(t, errors.As(err, &inProgress))

	applied, err := r.FinishTest(p.ID, rev, true)
	require.NoError(t, err)
	assert.True(t, applied)
	got, _ = r.Get(p.ID)
	assert.Equal(t, types.StatusConnected, got.Status)
}

func TestFinishTest_StaleAfterEdit(t *testing.T) {
	r, _ := newTestRegistry(t)
	p, err := r.Add(input("one"))
	require.NoError(t, err)

	_, rev, err := r.BeginTest(p.ID)
	require.NoError(t, err)

	port := 3307
	_, err = r.Update(p.ID, types.ProfilePatch{Port: &port})
	require.NoError(t, err)

	applied, err := r.FinishTest(p.ID, rev, true)
	require.NoError(t, err)
	assert.False(t, applied)
	got, _ := r.Get(p.ID)
	assert.Equal(t, types.StatusDisconnected, got.Status)

	applied, err = r.FinishTest("deleted", rev, true)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestConcurrentAdds(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Add(input(fmt.Sprintf("c%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list := r.List()
	assert.Len(t, list, 50)
	ids := map[string]bool{}
	for _, p := range list {
		ids[p.ID] = true
	}
	assert.Len(t, ids, 50)
}

func TestFinishTest_LeavesTestingWhenPersistFails(t *testing.T) {
	r, st := newTestRegistry(t)
	p, err := r.Add(input("one"))
	require.NoError(t, err)
	_, rev, err := r.BeginTest(p.ID)
	require.NoError(t, err)

	st.fail = true
	applied, err := r.FinishTest(p.ID, rev, false)
	assert.Error(t, err)
	assert.True(t, applied)

	got, _ := r.Get(p.ID)
	assert.Equal(t, types.StatusDisconnected, got.Status)
}

func TestSetStatus_StoredProfileThatNoLongerValidates(t *testing.T) {
	st := &countingStore{Memory: store.NewMemory()}
	raw, err := json.Marshal([]types.ConnectionProfile{{
		ID: "bad", Kind: types.BackendMySQL, Port: 3306, Database: "d", Username: "u", Secret: "s",
		Status: types.StatusConnected,
	}})
	require.NoError(t, err)
	require.NoError(t, st.Set(constants.StoreKeyConnections, raw))
	r, err := New(st, nil)
	require.NoError(t, err)

	require.NoError(t, r.SetStatus("bad", types.StatusDisconnected))
	got, _ := r.Get("bad")
	assert.Equal(t, types.StatusDisconnected, got.Status)

	name := "renamed"
	_, err = r.Update("bad", types.ProfilePatch{Name: &name})
	assert.NoError(t, err)

	// connection edits are still validated
	db := "other"
	_, err = r.Update("bad", types.ProfilePatch{Database: &db})
	var verr *types.ValidationError
	assert.True(t, errors.As(err, &verr))
}
