package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{"closed", "half-open", "open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Settings configures a Breaker. Zero fields take defaults.
type Settings struct {
	MaxRequests uint32        // probes admitted while half-open (1)
	Interval    time.Duration // closed-state window after which counts reset (60s)
	Timeout     time.Duration // time spent open before probing (60s)

	// ReadyToTrip decides, after a failure while closed, whether to open.
	// Defaults to more than five consecutive failures.
	ReadyToTrip func(counts Counts) bool

	// IsSuccessful classifies a call's error. Defaults to err == nil.
	IsSuccessful func(err error) bool

	OnStateChange func(name string, from, to State)

	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// Counts are the call statistics of the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker stops calls to a failing dependency until it has had time to
// recover. Results of calls admitted in an earlier window are ignored.
type Breaker struct {
	name string
	cfg  Settings

	mu       sync.Mutex
	state    State
	window   uint64
	counts   Counts
	deadline time.Time // end of the closed window or of the open period
}

// New creates a closed breaker.
func New(name string, cfg Settings) *Breaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = func(counts Counts) bool { return counts.ConsecutiveFailures > 5 }
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool { return err == nil }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Breaker{
		name:     name,
		cfg:      cfg,
		deadline: cfg.Clock().Add(cfg.Interval),
	}
}

func (b *Breaker) Name() string {
	return b.name
}

// State reports the position, moving open to half-open once the timeout
// has passed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advance(b.cfg.Clock())
}

// Counts returns the statistics of the current window.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Call runs fn if b admits it and records the outcome. A panic in fn counts
// as a failure and is re-raised.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	window, err := b.admit()
	if err != nil {
		var zero T
		return zero, err
	}

	settled := false
	defer func() {
		if !settled {
			b.settle(window, false)
		}
	}()

	out, err := fn()
	settled = true
	b.settle(window, b.cfg.IsSuccessful(err))
	return out, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.advance(b.cfg.Clock()) {
	case StateOpen:
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if b.counts.Requests >= b.cfg.MaxRequests {
			return 0, ErrTooManyRequests
		}
	}
	b.counts.Requests++
	return b.window, nil
}

func (b *Breaker) settle(window uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock()
	state := b.advance(now)
	if window != b.window {
		return
	}

	if ok {
		b.counts.success()
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.MaxRequests {
			b.moveTo(StateClosed, now)
		}
		return
	}

	b.counts.failure()
	if state == StateHalfOpen || b.cfg.ReadyToTrip(b.counts) {
		b.moveTo(StateOpen, now)
	}
}

// advance applies the time-driven transitions. Callers hold mu.
func (b *Breaker) advance(now time.Time) State {
	switch b.state {
	case StateClosed:
		if now.After(b.deadline) {
			b.window++
			b.counts = Counts{}
			b.deadline = now.Add(b.cfg.Interval)
		}
	case StateOpen:
		if !now.Before(b.deadline) {
			b.moveTo(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) moveTo(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.window++
	b.counts = Counts{}

	switch to {
	case StateClosed:
		b.deadline = now.Add(b.cfg.Interval)
	case StateOpen:
		b.deadline = now.Add(b.cfg.Timeout)
	default:
		b.deadline = time.Time{}
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
