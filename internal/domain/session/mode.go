package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned by ParseMode for an unrecognised mode name.
var ErrUnknownMode = errors.New("unknown working mode")

// Mode is a session's working mode. Native and Web are the only values;
// the zero Mode is Native.
type Mode struct {
	id uint8
}

var (
	// Native drives the application's UI directly.
	Native = Mode{id: 0}
	// Web drives web content hosted inside the application.
	Web = Mode{id: 1}
)

// Modes lists every working mode.
var Modes = [...]Mode{Native, Web}

// String returns the wire name of the mode.
func (m Mode) String() string {
	if m == Web {
		return "WEBVIEW"
	}
	return "NATIVE_APP"
}

// ParseMode converts a wire or short name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NATIVE_APP", "NATIVE":
		return Native, nil
	case "WEBVIEW", "WEB":
		return Web, nil
	default:
		return Native, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
