package session

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/domain/application"
	"github.com/GriffinCanCode/iosdriver/internal/domain/capabilities"
	"github.com/GriffinCanCode/iosdriver/internal/domain/configuration"
	"github.com/GriffinCanCode/iosdriver/internal/driver"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/instruments"
	"github.com/GriffinCanCode/iosdriver/internal/shared/id"
)

// Matcher resolves capabilities to an installed application.
type Matcher interface {
	FindMatchingApplication(caps capabilities.Capabilities) (*application.Application, error)
}

// Host describes the machine the server runs on.
type Host interface {
	Port() int
	InstalledSDKs() []string
	DefaultSDK() string
}

// Instruments is the session's handle on the instrumentation process.
type Instruments interface {
	StartSession(ctx context.Context, opts instruments.Options) error
	Stop(ctx context.Context)
	ForceStop()
	Communicate() *instruments.Channel
	Output() string
	SessionID() string
}

// NativeDriver issues native UI commands to the instrumentation process.
type NativeDriver interface {
	SessionID() string
	Quit(ctx context.Context) error
}

// WebInspector automates web content inside the application.
type WebInspector interface {
	Close() error
}

// Hooks registers cleanup to run on abnormal process termination.
type Hooks interface {
	Register(name string, fn func()) (unregister func())
}

// Metrics receives session lifecycle events.
type Metrics interface {
	SessionCreated()
	SessionRejected(reason string)
	DriverDegraded()
}

// Deps are the collaborators a Session is built from. Matcher, Host and
// NewInstruments are required.
type Deps struct {
	Matcher        Matcher
	Host           Host
	NewInstruments func(port int) Instruments
	NewDriver      func(endpoint *url.URL, instrumentsSessionID string) NativeDriver
	NewInspector   func(ctx context.Context, driver NativeDriver, bundleID string, owner *Session) (WebInspector, error)
	Hooks          Hooks
	Metrics        Metrics
	Logger         *logging.Logger
}

type state int

const (
	stateCreated state = iota
	stateStarting
	stateStarted
	stateStopped
)

// quitTimeout bounds each native driver quit.
const quitTimeout = 5 * time.Second

// Session binds one device, one application and one instrumentation
// process under automation.
type Session struct {
	id          id.SessionID
	caps        capabilities.Capabilities
	app         *application.Application
	instruments Instruments
	context     *Context
	confs       [len(Modes)]*configuration.Store
	createdAt   time.Time

	port         int
	newDriver    func(endpoint *url.URL, instrumentsSessionID string) NativeDriver
	newInspector func(ctx context.Context, driver NativeDriver, bundleID string, owner *Session) (WebInspector, error)
	metrics      Metrics
	logger       *logging.Logger

	mu         sync.RWMutex
	state      state
	driver     NativeDriver
	driverErr  error
	inspector  WebInspector
	unregister func()

	// serialises inspector construction without holding mu
	inspectorMu sync.Mutex
}

// New resolves the application and SDK for caps and allocates the
// session's resources. Nothing is allocated when resolution fails.
func New(deps Deps, caps capabilities.Capabilities) (*Session, error) {
	logger := logging.OrNop(deps.Logger).Named("session")
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	app, err := deps.Matcher.FindMatchingApplication(caps)
	if err != nil {
		metrics.SessionRejected(ReasonNoApplication)
		return nil, &NotCreatedError{Reason: ReasonNoApplication, Err: err}
	}

	if caps.Language != "" {
		app = app.WithLanguage(caps.Language)
	}

	sdk, err := resolveSDK(deps.Host, caps.SDKVersion)
	if err != nil {
		metrics.SessionRejected(ReasonSDKUnavailable)
		return nil, err
	}
	caps = caps.WithSDKVersion(sdk)

	s := &Session{
		id:           id.NewSessionID(),
		caps:         caps,
		app:          app,
		instruments:  deps.NewInstruments(deps.Host.Port()),
		context:      NewContext(),
		createdAt:    time.Now(),
		port:         deps.Host.Port(),
		newDriver:    deps.NewDriver,
		newInspector: deps.NewInspector,
		metrics:      metrics,
	}
	for i := range s.confs {
		s.confs[i] = configuration.NewStore()
	}
	s.logger = logger.ForSession(s.id.String())

	if deps.Hooks != nil {
		s.unregister = deps.Hooks.Register("session "+s.id.String(), s.ForceStop)
	}

	metrics.SessionCreated()
	s.logger.Info("Session created",
		zap.String("app", app.Path()),
		zap.String("sdk", sdk),
		zap.String("device", caps.Device),
	)
	return s, nil
}

func resolveSDK(host Host, requested string) (string, error) {
	if requested == "" {
		return host.DefaultSDK(), nil
	}

	installed := host.InstalledSDKs()
	if !slices.Contains(installed, requested) {
		return "", &NotCreatedError{
			Reason:        ReasonSDKUnavailable,
			RequestedSDK:  requested,
			InstalledSDKs: slices.Clone(installed),
		}
	}
	return requested, nil
}

// ID returns the session identifier.
func (s *Session) ID() id.SessionID {
	return s.id
}

// Capabilities returns the negotiated capabilities, with the SDK resolved.
func (s *Session) Capabilities() capabilities.Capabilities {
	return s.caps.Clone()
}

// CreatedAt returns the construction time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Application returns the application under test.
func (s *Session) Application() *application.Application {
	return s.app
}

// Instruments returns the instrumentation handle.
func (s *Session) Instruments() Instruments {
	return s.instruments
}

// Context returns the working-mode holder.
func (s *Session) Context() *Context {
	return s.context
}

// SetMode switches the working mode.
func (s *Session) SetMode(mode Mode) {
	s.context.SwitchToMode(mode)
	s.logger.Debug("Mode switched", zap.Stringer("mode", mode))
}

// Mode returns the current working mode.
func (s *Session) Mode() Mode {
	return s.context.Mode()
}

// Conf returns the configuration store for mode.
func (s *Session) Conf(mode Mode) *configuration.Store {
	return s.confs[mode.id]
}

// Communication returns the channel to the instrumentation process, or nil
// when it is not running.
func (s *Session) Communication() *instruments.Channel {
	return s.instruments.Communicate()
}

// OutputFolder returns the instrumentation output folder.
func (s *Session) OutputFolder() string {
	return s.instruments.Output()
}

// NativeDriver returns the driver attached by Start, or nil.
func (s *Session) NativeDriver() NativeDriver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driver
}

// DriverErr returns the reason Start could not attach a driver, or nil.
func (s *Session) DriverErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driverErr
}

// Started reports whether Start has completed.
func (s *Session) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateStarted
}

// Stopped reports whether Stop or ForceStop has been called.
func (s *Session) Stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateStopped
}

// Start launches instrumentation and attaches the native driver. It may
// succeed only once. A driver endpoint that cannot be built leaves the
// session running without a driver; see DriverErr.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateStarting, stateStarted:
		s.mu.Unlock()
		return ErrAlreadyStarted
	case stateStopped:
		s.mu.Unlock()
		return ErrSessionStopped
	}
	s.state = stateStarting
	s.mu.Unlock()

	opts := instruments.Options{
		Device:        s.caps.Device,
		SDKVersion:    s.caps.SDKVersion,
		Locale:        s.caps.Locale,
		Language:      s.caps.Language,
		AppPath:       s.app.Path(),
		SessionID:     s.id.String(),
		TimeHack:      s.caps.TimeHack,
		ExtraSwitches: slices.Clone(s.caps.ExtraSwitches),
	}
	if err := s.instruments.StartSession(ctx, opts); err != nil {
		s.mu.Lock()
		if s.state == stateStarting {
			s.state = stateCreated
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to start instruments: %w", err)
	}

	var nativeDriver NativeDriver
	endpoint, endpointErr := driver.Endpoint(s.port)
	if endpointErr != nil {
		s.logger.Warn("Native driver unavailable", zap.Int("port", s.port), zap.Error(endpointErr))
		s.metrics.DriverDegraded()
	} else if s.newDriver != nil {
		nativeDriver = s.newDriver(endpoint, s.instruments.SessionID())
	}

	s.mu.Lock()
	if s.state == stateStopped {
		s.mu.Unlock()
		if nativeDriver != nil {
			quitCtx, cancel := context.WithTimeout(context.Background(), quitTimeout)
			if err := nativeDriver.Quit(quitCtx); err != nil {
				s.logger.Debug("Failed to quit native driver", zap.Error(err))
			}
			cancel()
		}
		return ErrSessionStopped
	}
	defer s.mu.Unlock()

	s.state = stateStarted
	s.driver = nativeDriver
	s.driverErr = endpointErr

	s.logger.Info("Session started",
		zap.String("instruments_session_id", s.instruments.SessionID()),
		zap.Bool("native_driver", nativeDriver != nil),
	)
	return nil
}

// WebInspector returns the session's web inspector, building it on first
// use. A failed build is retried on the next call.
func (s *Session) WebInspector(ctx context.Context) (WebInspector, error) {
	s.inspectorMu.Lock()
	defer s.inspectorMu.Unlock()

	s.mu.RLock()
	cached, nativeDriver, st := s.inspector, s.driver, s.state
	s.mu.RUnlock()

	if cached != nil {
		return cached, nil
	}
	if st == stateStopped {
		return nil, ErrSessionStopped
	}
	if nativeDriver == nil {
		return nil, ErrNoNativeDriver
	}
	if s.newInspector == nil {
		return nil, fmt.Errorf("web inspector not configured")
	}

	bundleID := s.app.Metadata(application.MetaBundleID)
	in, err := s.newInspector(ctx, nativeDriver, bundleID, s)
	if err != nil {
		s.logger.Warn("Failed to create web inspector", zap.String("bundle_id", bundleID), zap.Error(err))
		return nil, fmt.Errorf("failed to create web inspector: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateStopped {
		in.Close()
		return nil, ErrSessionStopped
	}
	s.inspector = in
	return in, nil
}

// Stop asks the instrumentation process to exit cleanly and releases the
// session's remote proxies. Errors are logged, never returned.
func (s *Session) Stop(ctx context.Context) {
	nativeDriver, in, first := s.markStopped()
	if !first {
		return
	}

	if in != nil {
		if err := in.Close(); err != nil {
			s.logger.Debug("Failed to close web inspector", zap.Error(err))
		}
	}
	if nativeDriver != nil {
		quitCtx, cancel := context.WithTimeout(ctx, quitTimeout)
		if err := nativeDriver.Quit(quitCtx); err != nil {
			s.logger.Debug("Failed to quit native driver", zap.Error(err))
		}
		cancel()
	}

	s.instruments.Stop(ctx)
	s.release()
	s.logger.Info("Session stopped")
}

// ForceStop terminates the instrumentation process unconditionally. It is
// safe from any goroutine, in any state, any number of times.
func (s *Session) ForceStop() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered during force stop", zap.Any("panic", r))
		}
	}()

	_, in, first := s.markStopped()

	s.instruments.ForceStop()
	if first && in != nil {
		in.Close()
	}
	s.release()

	if first {
		s.logger.Info("Session force stopped")
	}
}

// markStopped moves the session to stopped and reports whether this call
// did so.
func (s *Session) markStopped() (NativeDriver, WebInspector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.state != stateStopped
	s.state = stateStopped
	return s.driver, s.inspector, first
}

func (s *Session) release() {
	s.mu.Lock()
	unregister := s.unregister
	s.unregister = nil
	s.mu.Unlock()

	if unregister != nil {
		unregister()
	}
}

type nopMetrics struct{}

func (nopMetrics) SessionCreated()        {}
func (nopMetrics) SessionRejected(string) {}
func (nopMetrics) DriverDegraded()        {}
