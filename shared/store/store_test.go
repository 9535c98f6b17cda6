package store_test

import (
	"path/filepath"
	"testing"

	"github.com/dracory/insightpilot/shared/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) store.Store
	}{
		{
			name:  "memory",
			setup: func(t *testing.T) store.Store { return store.NewMemory() },
		},
		{
			name: "sqlite",
			setup: func(t *testing.T) store.Store {
				s, err := store.OpenSQLite(":memory:")
				require.NoError(t, err)
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.setup(t)

			_, ok, err := s.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("connections", []byte(`[1]`)))
			require.NoError(t, s.Set("connections", []byte(`[1,2]`)))

			got, ok, err := s.Get("connections")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[1,2]`, string(got))
		})
	}
}

func TestOpenSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")

	s, err := store.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("openai_api_key", []byte("sk-test")))
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Get("openai_api_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-test", string(got))
}

func TestMemory_ReturnsCopies(t *testing.T) {
	s := store.NewMemory()
	value := []byte("abc")
	require.NoError(t, s.Set("k", value))
	value[0] = 'x'

	got, _, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
