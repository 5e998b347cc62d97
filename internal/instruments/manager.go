package instruments

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
)

var (
	// ErrAlreadyStarted is returned when StartSession is called twice.
	ErrAlreadyStarted = errors.New("instruments already started")
	// ErrStopped is returned when StartSession is called after a stop.
	ErrStopped = errors.New("instruments stopped")
)

// messagePrefix marks output lines that carry a Message for the server.
const messagePrefix = "ios-driver:"

// logFileName is the instruments output log inside the output folder.
const logFileName = "instruments.log"

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Config controls how the instrumentation process is launched.
type Config struct {
	Command       string
	Args          []string // placed before the generated arguments
	OutputRoot    string   // parent of per-session output folders; "" = os.TempDir()
	StopTimeout   time.Duration
	LogBufferSize int
	ChannelSize   int
}

// DefaultConfig returns the stock instruments launcher configuration.
func DefaultConfig() Config {
	return Config{
		Command:       "instruments",
		StopTimeout:   10 * time.Second,
		LogBufferSize: 256 * 1024,
		ChannelSize:   64,
	}
}

// Options are the per-session launch parameters.
type Options struct {
	Device        string
	SDKVersion    string
	Locale        string
	Language      string
	AppPath       string
	SessionID     string
	TimeHack      bool
	ExtraSwitches []string
}

// Args renders the instruments command-line arguments for o.
func (o Options) Args(outputDir string) []string {
	args := []string{
		"-w", simulatorName(o.Device, o.SDKVersion),
		"-D", filepath.Join(outputDir, "trace"),
		o.AppPath,
		"-e", "UIARESULTSPATH", outputDir,
	}
	if o.Language != "" {
		args = append(args, "-AppleLanguages", "("+o.Language+")")
	}
	if o.Locale != "" {
		args = append(args, "-AppleLocale", o.Locale)
	}
	return append(args, o.ExtraSwitches...)
}

func simulatorName(device, sdk string) string {
	name := "iPhone"
	if strings.EqualFold(device, "ipad") {
		name = "iPad"
	}
	if sdk == "" {
		return name + " Simulator"
	}
	return fmt.Sprintf("%s Simulator (%s)", name, sdk)
}

// Manager owns one external instrumentation process.
//
// StartSession launches it under a pseudo-terminal (instruments only
// flushes its output line by line when attached to a tty). Stop asks the
// process to exit and waits for it; ForceStop kills it. Both are safe to
// call from any goroutine, in any state, any number of times.
type Manager struct {
	port   int
	cfg    Config
	logger *logging.Logger

	mu        sync.Mutex
	state     state
	sessionID string
	output    string
	channel   *Channel
	cmd       *exec.Cmd
	ptmx      *os.File
	logFile   *os.File
	cancel    context.CancelFunc
	exited    chan struct{}
	exitErr   error

	log *Buffer
}

// NewManager creates a manager bound to the server's communication port.
func NewManager(port int, cfg Config, logger *logging.Logger) *Manager {
	if cfg.Command == "" {
		cfg.Command = DefaultConfig().Command
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}
	return &Manager{
		port:   port,
		cfg:    cfg,
		logger: logging.OrNop(logger).Named("instruments"),
		exited: make(chan struct{}),
		log:    NewBuffer(cfg.LogBufferSize),
	}
}

// Port returns the communication port the process is told to report to.
func (m *Manager) Port() int {
	return m.port
}

// StartSession launches the instrumentation process for one session.
func (m *Manager) StartSession(ctx context.Context, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	output, err := os.MkdirTemp(m.cfg.OutputRoot, "instruments-")
	if err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	logFile, err := os.Create(filepath.Join(output, logFileName))
	if err != nil {
		os.RemoveAll(output)
		return fmt.Errorf("failed to create instruments log: %w", err)
	}

	sessionID := uuid.NewString()
	args := append(append([]string{}, m.cfg.Args...), opts.Args(output)...)

	cmd := exec.Command(m.cfg.Command, args...)
	cmd.Dir = output
	cmd.Env = append(os.Environ(),
		"IOS_DRIVER_PORT="+strconv.Itoa(m.port),
		"IOS_DRIVER_SESSION="+sessionID,
		"IOS_DRIVER_SERVER_SESSION="+opts.SessionID,
		"IOS_DRIVER_SDK="+opts.SDKVersion,
		"IOS_DRIVER_TIME_HACK="+strconv.FormatBool(opts.TimeHack),
	)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		logFile.Close()
		os.RemoveAll(output)
		return fmt.Errorf("failed to start instruments: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	channel := NewChannel(m.cfg.ChannelSize)

	m.state = stateRunning
	m.sessionID = sessionID
	m.output = output
	m.channel = channel
	m.cmd = cmd
	m.ptmx = ptmx
	m.logFile = logFile
	m.cancel = cancel

	go m.readOutput(ptmx, logFile, channel)
	go m.writeInput(pumpCtx, ptmx, channel)
	go m.monitorProcess(cmd)

	m.logger.Info("Instruments started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("instruments_session_id", sessionID),
		zap.String("session_id", opts.SessionID),
		zap.String("output", output),
		zap.String("sdk", opts.SDKVersion),
		zap.String("device", opts.Device),
	)

	return nil
}

// Stop asks the process to exit through the channel, waits up to the
// configured timeout (or ctx), then releases everything via ForceStop.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	running := m.state == stateRunning
	channel := m.channel
	m.mu.Unlock()

	if running {
		if err := channel.Send(ctx, Message{Type: MessageStop}); err != nil {
			m.logger.Warn("Failed to request instruments stop", zap.Error(err))
		}

		timer := time.NewTimer(m.cfg.StopTimeout)
		defer timer.Stop()

		select {
		case <-m.exited:
			m.logger.Info("Instruments exited", zap.Error(m.ExitErr()))
		case <-timer.C:
			m.logger.Warn("Instruments did not exit in time, killing",
				zap.Duration("timeout", m.cfg.StopTimeout))
		case <-ctx.Done():
			m.logger.Warn("Stop cancelled, killing instruments", zap.Error(ctx.Err()))
		}
	}

	m.ForceStop()
}

// ForceStop kills the process and releases the channel and terminal. It
// never blocks on the process and never panics.
func (m *Manager) ForceStop() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Recovered during instruments force stop", zap.Any("panic", r))
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateStopped {
		return
	}
	wasRunning := m.state == stateRunning
	m.state = stateStopped

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.cmd != nil && m.cmd.Process != nil && !m.hasExited() {
		if err := killProcessGroup(m.cmd.Process); err != nil {
			m.logger.Warn("Failed to kill instruments", zap.Error(err))
		}
	}
	if m.ptmx != nil {
		m.ptmx.Close()
		m.ptmx = nil
	}
	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
	}
	if m.channel != nil {
		m.channel.Close()
		m.channel = nil
	}
	m.cmd = nil

	if wasRunning {
		m.logger.Info("Instruments released", zap.String("instruments_session_id", m.sessionID))
	}
}

// Communicate returns the channel to the running process, or nil when the
// process is not running.
func (m *Manager) Communicate() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// Output returns the session's output folder ("" before start). The folder
// survives Stop so results can be collected.
func (m *Manager) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output
}

// SessionID returns the instrumentation-assigned session identifier.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Running reports whether the process has been started and not stopped.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateRunning
}

// Exited is closed once the process has exited.
func (m *Manager) Exited() <-chan struct{} {
	return m.exited
}

// ExitErr returns the process exit error once it has exited.
func (m *Manager) ExitErr() error {
	select {
	case <-m.exited:
		return m.exitErr
	default:
		return nil
	}
}

// Log returns the most recent process output.
func (m *Manager) Log() string {
	return string(m.log.Bytes())
}

func (m *Manager) hasExited() bool {
	select {
	case <-m.exited:
		return true
	default:
		return false
	}
}

// readOutput splits process output into log lines and channel messages.
func (m *Manager) readOutput(ptmx *os.File, logFile *os.File, channel *Channel) {
	scanner := bufio.NewScanner(ptmx)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	overflowing := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if payload, ok := strings.CutPrefix(line, messagePrefix); ok {
			var msg Message
			if err := sonic.UnmarshalString(payload, &msg); err != nil {
				m.logger.Warn("Malformed instruments message", zap.String("line", line), zap.Error(err))
				continue
			}
			dropped, err := channel.Deliver(msg)
			if err != nil {
				return
			}
			if dropped && !overflowing {
				m.logger.Warn("Instruments messages not consumed, dropping oldest", zap.String("type", msg.Type))
			}
			overflowing = dropped
			continue
		}

		m.log.Write([]byte(line + "\n"))
		logFile.WriteString(line + "\n")
	}
}

// writeInput serialises queued messages onto the process's terminal.
func (m *Manager) writeInput(ctx context.Context, ptmx *os.File, channel *Channel) {
	for {
		msg, err := channel.Next(ctx)
		if err != nil {
			return
		}

		line, err := sonic.MarshalString(msg)
		if err != nil {
			m.logger.Warn("Failed to encode instruments message", zap.Error(err))
			continue
		}
		if _, err := ptmx.WriteString(line + "\n"); err != nil {
			m.logger.Debug("Instruments input closed", zap.Error(err))
			return
		}
	}
}

// monitorProcess waits for the process to exit.
func (m *Manager) monitorProcess(cmd *exec.Cmd) {
	err := cmd.Wait()
	m.exitErr = err
	close(m.exited)
}
