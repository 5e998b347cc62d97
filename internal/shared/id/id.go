// Package id generates the server's identifiers: prefixed ULIDs, so
// sessions sort in creation order and a session ID cannot be mistaken for a
// request ID.
//
// Instrumentation-assigned IDs live in their own namespace and are not
// produced here.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrMalformed reports an identifier that was not produced by this package.
var ErrMalformed = errors.New("malformed identifier")

const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
)

// SessionID identifies an automation session.
type SessionID string

// RequestID identifies an API request or trace span.
type RequestID string

var source = struct {
	sync.Mutex
	entropy io.Reader
}{entropy: ulid.Monotonic(rand.Reader, 0)}

func next(prefix string) string {
	source.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), source.entropy)
	source.Unlock()
	return prefix + "_" + u.String()
}

func NewSessionID() SessionID { return SessionID(next(SessionPrefix)) }
func NewRequestID() RequestID { return RequestID(next(RequestPrefix)) }

// ParseSessionID checks that s has the form sess_<ULID>.
func ParseSessionID(s string) (SessionID, error) {
	if _, err := parse(s, SessionPrefix); err != nil {
		return "", err
	}
	return SessionID(s), nil
}

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }

// Time returns when the session ID was generated, or the zero time for a
// malformed ID.
func (id SessionID) Time() time.Time {
	u, err := parse(string(id), SessionPrefix)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}

func parse(s, prefix string) (ulid.ULID, error) {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return ulid.ULID{}, fmt.Errorf("%w: %q lacks prefix %s_", ErrMalformed, s, prefix)
	}
	u, err := ulid.ParseStrict(rest)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	return u, nil
}
