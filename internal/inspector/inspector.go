package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/shared/id"
)

var (
	ErrNoBundleID = errors.New("application has no bundle identifier")
	ErrNoDriver   = errors.New("web inspector requires a native driver")
	ErrClosed     = errors.New("web inspector closed")
)

// Driver is the part of the native driver the inspector needs.
type Driver interface {
	SessionID() string
}

// Owner is the session the inspector belongs to.
type Owner interface {
	ID() id.SessionID
}

// Config holds the remote debugger connection settings.
type Config struct {
	Address string
	Timeout time.Duration
}

// DefaultConfig returns the simulator's default remote debugger settings.
func DefaultConfig() Config {
	return Config{
		Address: "ws://localhost:27753/devtools",
		Timeout: 10 * time.Second,
	}
}

// RemoteError is an error reported by the remote debugger.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote debugger error %d: %s", e.Code, e.Message)
}

type request struct {
	ID     int                    `json:"id"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type response struct {
	ID     int             `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// Factory builds inspectors against one remote debugger address.
type Factory struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *logging.Logger
}

// NewFactory creates a factory.
func NewFactory(cfg Config, logger *logging.Logger) *Factory {
	if cfg.Address == "" {
		cfg.Address = DefaultConfig().Address
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Factory{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timeout,
		},
		logger: logging.OrNop(logger).Named("inspector"),
	}
}

// Inspector automates web content hosted inside the application under
// test through the simulator's remote debugger.
type Inspector struct {
	driver   Driver
	bundleID string
	owner    Owner
	timeout  time.Duration
	logger   *logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
	closed bool
}

// New connects to the remote debugger and attaches to bundleID's web
// content on behalf of owner.
func (f *Factory) New(ctx context.Context, driver Driver, bundleID string, owner Owner) (*Inspector, error) {
	if driver == nil {
		return nil, ErrNoDriver
	}
	if bundleID == "" {
		return nil, ErrNoBundleID
	}

	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	conn, _, err := f.dialer.DialContext(dialCtx, f.cfg.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote debugger: %w", err)
	}

	in := &Inspector{
		driver:   driver,
		bundleID: bundleID,
		owner:    owner,
		timeout:  f.cfg.Timeout,
		logger:   f.logger,
		conn:     conn,
	}

	params := map[string]interface{}{
		"bundleId":  bundleID,
		"sessionId": driver.SessionID(),
	}
	if owner != nil {
		params["owner"] = owner.ID().String()
	}
	if _, err := in.call(ctx, "Inspector.attach", params); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to attach to %s: %w", bundleID, err)
	}

	f.logger.Info("Web inspector attached",
		zap.String("bundle_id", bundleID),
		zap.String("instruments_session_id", driver.SessionID()),
	)
	return in, nil
}

// BundleID returns the application the inspector is attached to.
func (in *Inspector) BundleID() string {
	return in.bundleID
}

// Evaluate runs expression in the page and returns its JSON result.
func (in *Inspector) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	return in.call(ctx, "Runtime.evaluate", map[string]interface{}{
		"expression":    expression,
		"returnByValue": true,
	})
}

// Close detaches from the remote debugger. It is safe to call more than
// once.
func (in *Inspector) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil
	}
	in.closed = true

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := in.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		in.logger.Debug("Close handshake failed", zap.Error(err))
	}
	return in.conn.Close()
}

// call sends one request and waits for its response, skipping any events
// the debugger pushes in between.
func (in *Inspector) call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(in.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	in.conn.SetWriteDeadline(deadline)
	in.conn.SetReadDeadline(deadline)

	in.nextID++
	req := request{ID: in.nextID, Method: method, Params: params}
	if err := in.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	for {
		var resp response
		if err := in.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", method, err)
		}
		if resp.ID != req.ID {
			in.logger.Debug("Skipping debugger event", zap.String("method", resp.Method))
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}
