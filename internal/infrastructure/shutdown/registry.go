// Package shutdown runs registered cleanup actions once when the process is
// asked to terminate.
//
// Sessions register their force-stop action at construction and unregister
// it once they have been stopped. Run may be triggered by a signal (see
// Notify) or called directly by the server on its way out.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
)

type hook struct {
	name string
	fn   func()
}

// Registry holds cleanup hooks.
type Registry struct {
	mu     sync.Mutex
	hooks  map[uint64]hook
	nextID uint64
	ran    bool
	logger *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		hooks:  make(map[uint64]hook),
		logger: logging.OrNop(logger).Named("shutdown"),
	}
}

// Register adds fn and returns a func that removes it again. Hooks
// registered after Run are executed immediately.
func (r *Registry) Register(name string, fn func()) (unregister func()) {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		r.invoke(hook{name: name, fn: fn})
		return func() {}
	}

	r.nextID++
	key := r.nextID
	r.hooks[key] = hook{name: name, fn: fn}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.hooks, key)
			r.mu.Unlock()
		})
	}
}

// Len returns the number of pending hooks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks)
}

// Run executes every pending hook concurrently and waits for them. Only the
// first call does anything.
func (r *Registry) Run() {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return
	}
	r.ran = true
	hooks := r.hooks
	r.hooks = make(map[uint64]hook)
	r.mu.Unlock()

	if len(hooks) > 0 {
		r.logger.Info("Running shutdown hooks", zap.Int("count", len(hooks)))
	}

	var wg sync.WaitGroup
	for _, h := range hooks {
		wg.Add(1)
		go func(h hook) {
			defer wg.Done()
			r.invoke(h)
		}(h)
	}
	wg.Wait()
}

func (r *Registry) invoke(h hook) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Shutdown hook panicked", zap.String("hook", h.name), zap.Any("panic", rec))
		}
	}()
	h.fn()
}

// Notify runs the registry when the process receives SIGINT or SIGTERM, or
// when ctx is done. The returned stop func detaches the signal handler
// without running anything.
func (r *Registry) Notify(ctx context.Context) (stop func()) {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				r.logger.Info("Termination signal received")
			}
			r.Run()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
			cancel()
		})
	}
}
