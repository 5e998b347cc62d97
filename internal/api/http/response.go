package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/iosdriver/internal/domain/session"
)

// JSON wire protocol status codes
const (
	StatusSuccess           = 0
	StatusNoSuchDriver      = 6
	StatusUnknownCommand    = 9
	StatusUnknownError      = 13
	StatusSessionNotCreated = 33
)

// Response is the JSON wire protocol envelope
type Response struct {
	SessionID string      `json:"sessionId,omitempty"`
	Status    int         `json:"status"`
	Value     interface{} `json:"value"`
}

// ErrorValue is the value of a failed response
type ErrorValue struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func respond(c *gin.Context, code int, sessionID string, value interface{}) {
	c.JSON(code, Response{SessionID: sessionID, Status: StatusSuccess, Value: value})
}

// badRequest rejects a malformed request body or parameter
func badRequest(c *gin.Context, sessionID string, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, Response{
		SessionID: sessionID,
		Status:    StatusUnknownCommand,
		Value:     ErrorValue{Message: err.Error()},
	})
}

// fail maps a domain error onto an HTTP code and wire status
func fail(c *gin.Context, sessionID string, err error) {
	_ = c.Error(err)

	code, status := http.StatusInternalServerError, StatusUnknownError
	value := ErrorValue{Message: err.Error()}

	var notCreated *session.NotCreatedError
	switch {
	case errors.As(err, &notCreated):
		status = StatusSessionNotCreated
		value.Reason = notCreated.Reason
	case errors.Is(err, session.ErrSessionNotCreated):
		status = StatusSessionNotCreated
	case errors.Is(err, session.ErrSessionNotFound):
		code, status = http.StatusNotFound, StatusNoSuchDriver
	case errors.Is(err, session.ErrUnknownMode):
		code, status = http.StatusBadRequest, StatusUnknownCommand
	}

	c.JSON(code, Response{SessionID: sessionID, Status: status, Value: value})
}
