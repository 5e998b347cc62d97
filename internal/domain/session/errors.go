package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotCreated is matched by every construction failure.
	ErrSessionNotCreated = errors.New("session not created")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrSessionStopped    = errors.New("session stopped")
	ErrNoNativeDriver    = errors.New("session has no native driver")
	ErrSessionNotFound   = errors.New("session not found")
)

// Rejection reasons, also used as the sessions_rejected_total label.
const (
	ReasonNoApplication  = "no_application"
	ReasonSDKUnavailable = "sdk_unavailable"
	ReasonInvalidRequest = "invalid_request"
)

// NotCreatedError describes why a session could not be constructed.
type NotCreatedError struct {
	Reason        string
	RequestedSDK  string
	InstalledSDKs []string
	Err           error
}

func (e *NotCreatedError) Error() string {
	switch {
	case e.Reason == ReasonSDKUnavailable:
		return fmt.Sprintf("session not created: sdk %s not available, installed: [%s]",
			e.RequestedSDK, strings.Join(e.InstalledSDKs, ", "))
	case e.Err != nil:
		return "session not created: " + e.Err.Error()
	default:
		return "session not created: " + e.Reason
	}
}

func (e *NotCreatedError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSessionNotCreated) hold.
func (e *NotCreatedError) Is(target error) bool {
	return target == ErrSessionNotCreated
}
