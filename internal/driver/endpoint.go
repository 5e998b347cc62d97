package driver

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Path is the fixed automation endpoint path served by the instrumentation
// process.
const Path = "/wd/hub"

// ErrInvalidPort is returned by Endpoint for a port outside 1..65535.
var ErrInvalidPort = errors.New("invalid driver port")

// Endpoint returns the local automation endpoint for port.
func Endpoint(port int) (*url.URL, error) {
	return EndpointOn("localhost", port)
}

// EndpointOn returns the automation endpoint on host:port.
func EndpointOn(host string, port int) (*url.URL, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	u, err := url.Parse("http://" + net.JoinHostPort(host, strconv.Itoa(port)) + Path)
	if err != nil {
		return nil, fmt.Errorf("malformed driver endpoint: %w", err)
	}
	return u, nil
}
