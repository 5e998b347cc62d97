package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/iosdriver/internal/domain/capabilities"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/iosdriver/internal/shared/id"
)

// Manager tracks the live sessions of a server.
type Manager struct {
	deps     Deps
	sessions sync.Map
	count    atomic.Int64
	tracer   *tracing.Tracer
	logger   *logging.Logger
}

// NewManager creates a session manager building sessions from deps.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:   deps,
		logger: logging.OrNop(deps.Logger).Named("sessions"),
	}
}

// WithTracer enables spans around session creation and teardown.
func (m *Manager) WithTracer(tracer *tracing.Tracer) *Manager {
	m.tracer = tracer
	return m
}

// Create constructs and starts a session. A session that fails to start is
// force-stopped and not registered.
func (m *Manager) Create(ctx context.Context, caps capabilities.Capabilities) (s *Session, err error) {
	ctx, finish := m.span(ctx, "session.create")
	defer func() { finish(err) }()

	s, err = New(m.deps, caps)
	if err != nil {
		return nil, err
	}

	if err = s.Start(ctx); err != nil {
		s.ForceStop()
		m.logger.Warn("Session failed to start", zap.String(logging.SessionKey, s.ID().String()), zap.Error(err))
		return nil, err
	}

	m.sessions.Store(s.ID().String(), s)
	m.updateActive(m.count.Add(1))
	return s, nil
}

// Get returns the session with the given identifier.
func (m *Manager) Get(sid string) (*Session, error) {
	if _, err := id.ParseSessionID(sid); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
	if v, ok := m.sessions.Load(sid); ok {
		return v.(*Session), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sid)
}

// List returns all live sessions, oldest first.
func (m *Manager) List() []*Session {
	var out []*Session
	m.sessions.Range(func(_, value interface{}) bool {
		out = append(out, value.(*Session))
		return true
	})
	slices.SortFunc(out, func(a, b *Session) int {
		return cmp.Or(
			a.CreatedAt().Compare(b.CreatedAt()),
			strings.Compare(a.ID().String(), b.ID().String()),
		)
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return int(m.count.Load())
}

// Delete stops the session and forgets it.
func (m *Manager) Delete(ctx context.Context, sid string) (err error) {
	v, ok := m.sessions.LoadAndDelete(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sid)
	}
	m.updateActive(m.count.Add(-1))

	ctx, finish := m.span(ctx, "session.delete")
	defer func() { finish(err) }()

	v.(*Session).Stop(ctx)
	return nil
}

// StopAll stops every live session in parallel.
func (m *Manager) StopAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	m.sessions.Range(func(key, _ interface{}) bool {
		sid := key.(string)
		g.Go(func() error {
			err := m.Delete(ctx, sid)
			if err != nil && !errors.Is(err, ErrSessionNotFound) {
				return err
			}
			return nil
		})
		return true
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to stop sessions: %w", err)
	}
	return nil
}

// span is a no-op until WithTracer is called.
func (m *Manager) span(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := m.tracer.Start(ctx, name)
	return ctx, span.End
}

func (m *Manager) updateActive(n int64) {
	if g, ok := m.deps.Metrics.(interface{ SetSessionsActive(int) }); ok {
		g.SetSessionsActive(int(n))
	}
}
