package session

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := New(Deps{Log: zerolog.Nop()}, Options{})
	b := New(Deps{Log: zerolog.Nop()}, Options{})

	require.NoError(t, r.Register(42, a))
	require.NoError(t, r.Register(42, a))
	assert.ErrorIs(t, r.Register(42, b), ErrSessionBusy)

	r.Unregister(42, b)
	got, ok := r.Get(42)
	require.True(t, ok)
	assert.Same(t, a, got)

	r.Unregister(42, a)
	_, ok = r.Get(42)
	assert.False(t, ok)

	require.NoError(t, r.Register(1, a))
	require.NoError(t, r.Register(2, b))
	assert.Equal(t, 2, r.Len())

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	assert.True(t, a.Done())
	assert.True(t, b.Done())
}
