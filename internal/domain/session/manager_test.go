package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreateGetDelete(t *testing.T) {
	h := newHarness(4444, "9.1")
	m := NewManager(h.deps())

	s, err := m.Create(context.Background(), calcCaps(""))
	require.NoError(t, err)
	assert.True(t, s.Started())
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, h.metrics.active)

	got, err := m.Get(s.ID().String())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Delete(context.Background(), s.ID().String()))
	assert.True(t, s.Stopped())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, h.metrics.active)

	_, err = m.Get(s.ID().String())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(context.Background(), s.ID().String()), ErrSessionNotFound)
}

func TestManagerCreateRejected(t *testing.T) {
	h := newHarness(4444, "9.1")
	m := NewManager(h.deps())

	_, err := m.Create(context.Background(), calcCaps("6.0"))
	assert.ErrorIs(t, err, ErrSessionNotCreated)
	assert.Equal(t, 0, m.Len())
}

func TestManagerCreateStartFailureForceStops(t *testing.T) {
	h := newHarness(4444, "9.1")
	deps := h.deps()
	var handle *fakeInstruments
	deps.NewInstruments = func(port int) Instruments {
		handle = &fakeInstruments{port: port, startErr: errors.New("boom")}
		return handle
	}
	m := NewManager(deps)

	_, err := m.Create(context.Background(), calcCaps(""))
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 1, handle.forceStops)
	assert.Equal(t, 0, h.hooks.Len())
}

func TestManagerListAndStopAll(t *testing.T) {
	h := newHarness(4444, "9.1")
	m := NewManager(h.deps())

	var created []*Session
	for i := 0; i < 3; i++ {
		s, err := m.Create(context.Background(), calcCaps(""))
		require.NoError(t, err)
		created = append(created, s)
	}

	list := m.List()
	require.Len(t, list, 3)
	for i := range created {
		assert.Same(t, created[i], list[i])
	}

	require.NoError(t, m.StopAll(context.Background()))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.List())
	for _, s := range created {
		assert.True(t, s.Stopped())
	}
	assert.Equal(t, 0, h.hooks.Len())
}
