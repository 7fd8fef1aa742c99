package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeplabs/docstore/pkg/storage"
)

func newStore() *storage.Store {
	return storage.NewStore(nil, nil, nil)
}

func TestRegisterAndGet(t *testing.T) {
	reg := New()
	store := newStore()

	require.NoError(t, reg.Register("s3", store))

	got, err := reg.Get("s3")
	require.NoError(t, err)
	assert.Same(t, store, got)
}

func TestGetUnknownBackend(t *testing.T) {
	reg := New()

	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRegisterRejectsDuplicatesAndInvalid(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Register("local", newStore()))
	assert.Error(t, reg.Register("local", newStore()), "duplicate names must be rejected")
	assert.Error(t, reg.Register("", newStore()), "empty names must be rejected")
	assert.Error(t, reg.Register("nil", nil), "nil stores must be rejected")
}

func TestNamesSorted(t *testing.T) {
	reg := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(name, newStore()))
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}
