package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// logSource is implemented by instrumentation handles that keep recent
// process output.
type logSource interface {
	Log() string
}

// GetLog returns the recent output of the session's instrumentation process
// as plain text. Lines are ordered oldest first.
func (h *Handlers) GetLog(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var text string
	if src, ok := s.Instruments().(logSource); ok {
		text = src.Log()
	}

	c.Header("X-Session-ID", s.ID().String())
	c.String(http.StatusOK, text)
}
