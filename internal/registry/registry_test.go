package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayjayt/devtools-protocol/wire"
)

func TestReserveResolve(t *testing.T) {
	t.Parallel()

	r := New()
	key := wire.Key{SessionID: "s1", ID: 1}
	slot, err := r.Reserve(key)
	require.NoError(t, err)

	want := &wire.Message{ID: 1, SessionID: "s1", Result: []byte(`{}`)}
	found := r.Resolve(key, want)
	require.True(t, found)

	got := slot.Wait()
	assert.Same(t, want, got)
	assert.Equal(t, 0, r.Pending())
}

func TestReserveDuplicateKeyFails(t *testing.T) {
	t.Parallel()

	r := New()
	key := wire.Key{ID: 1}
	_, err := r.Reserve(key)
	require.NoError(t, err)

	_, err = r.Reserve(key)
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestResolveUnknownKeyIsNotAnError(t *testing.T) {
	t.Parallel()

	r := New()
	found := r.Resolve(wire.Key{ID: 99}, &wire.Message{})
	assert.False(t, found)
}

func TestDrainResolvesEveryPendingSlot(t *testing.T) {
	t.Parallel()

	r := New()
	keys := []wire.Key{{ID: 1}, {SessionID: "a", ID: 2}, {SessionID: "b", ID: 3}}
	slots := make([]*Slot, len(keys))
	for i, k := range keys {
		s, err := r.Reserve(k)
		require.NoError(t, err)
		slots[i] = s
	}

	r.Drain(errors.New("browser closed"))

	for _, s := range slots {
		msg := s.Wait()
		require.NotNil(t, msg.Error)
		assert.Equal(t, "browser closed", msg.Error.Message)
	}
	assert.Equal(t, 0, r.Pending())
}
