package driver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/resilience"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("native driver unavailable")

// Config tunes the driver client transport.
type Config struct {
	Timeout           time.Duration
	Retries           int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64 // <= 0 means unlimited
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		Retries:      3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// Response is a JSON wire protocol response body.
type Response struct {
	SessionID string      `json:"sessionId,omitempty"`
	Status    int         `json:"status"`
	Value     interface{} `json:"value"`
}

// CommandError is a non-zero wire protocol status.
type CommandError struct {
	Status  int
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("driver command failed with status %d", e.Status)
	}
	return fmt.Sprintf("driver command failed with status %d: %s", e.Status, e.Message)
}

// Client issues native commands to the instrumentation process's automation
// endpoint on behalf of one instrumentation session.
type Client struct {
	endpoint  *url.URL
	sessionID string

	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *logging.Logger
}

// NewClient creates a client bound to endpoint and the instrumentation
// assigned sessionID.
func NewClient(endpoint *url.URL, sessionID string, cfg Config, logger *logging.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.CheckRetry = retryPolicy
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(endpoint.String(), "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "iosdriver/1.0")
	restyClient.SetTransport(retryClient.StandardClient().Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}

	log := logging.OrNop(logger).Named("driver")
	breaker := resilience.New("native-driver", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("Driver circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		endpoint:  endpoint,
		sessionID: sessionID,
		resty:     restyClient,
		limiter:   limiter,
		breaker:   breaker,
		logger:    log,
	}
}

// WebDriver reports command failures as 500 with a JSON body.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusInternalServerError {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Endpoint returns the automation endpoint.
func (c *Client) Endpoint() *url.URL {
	return c.endpoint
}

// SessionID returns the instrumentation-assigned session identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Status queries the endpoint's status resource.
func (c *Client) Status(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, "/status", nil)
}

// Execute runs a command against the bound session. path is relative to
// /session/{id}, e.g. "/element".
func (c *Client) Execute(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	return c.do(ctx, method, c.sessionPath()+path, body)
}

// Quit ends the instrumentation session on the remote side.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, c.sessionPath(), nil)
	return err
}

func (c *Client) sessionPath() string {
	return "/session/" + url.PathEscape(c.sessionID)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	if c.breaker.State() == resilience.StateOpen {
		return nil, ErrUnavailable
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	out, err := resilience.Call(c.breaker, func() (*Response, error) {
		return c.send(ctx, method, path, body)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}

	var cmdErr *CommandError
	if err != nil && !errors.As(err, &cmdErr) {
		c.logger.Debug("Driver request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return out, err
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	var out Response
	req := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&out)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() >= http.StatusBadGateway {
		return nil, fmt.Errorf("driver endpoint returned %s", resp.Status())
	}

	if out.Status != 0 {
		return &out, &CommandError{Status: out.Status, Message: errorMessage(out.Value)}
	}
	if resp.IsError() {
		return &out, &CommandError{Status: resp.StatusCode(), Message: resp.Status()}
	}
	return &out, nil
}

// isSuccessful keeps command failures from tripping the breaker; only
// transport failures count.
func isSuccessful(err error) bool {
	var cmdErr *CommandError
	return err == nil || errors.As(err, &cmdErr)
}

func errorMessage(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return ""
}
