package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/domain/capabilities"
	"github.com/GriffinCanCode/iosdriver/internal/domain/session"
)

// CreateRequest is the body of POST /wd/hub/session
type CreateRequest struct {
	DesiredCapabilities map[string]interface{} `json:"desiredCapabilities"`
}

// ContextRequest is the body of POST /wd/hub/session/:id/context
type ContextRequest struct {
	Name string `json:"name" binding:"required"`
}

// SessionView summarises a live session
type SessionView struct {
	ID                   string                 `json:"id"`
	Capabilities         map[string]interface{} `json:"capabilities"`
	Mode                 session.Mode           `json:"mode"`
	Started              bool                   `json:"started"`
	NativeDriver         bool                   `json:"nativeDriver"`
	DriverError          string                 `json:"driverError,omitempty"`
	InstrumentsSessionID string                 `json:"instrumentsSessionId,omitempty"`
	OutputFolder         string                 `json:"outputFolder,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
}

func viewOf(s *session.Session) SessionView {
	v := SessionView{
		ID:                   s.ID().String(),
		Capabilities:         s.Capabilities().ToMap(),
		Mode:                 s.Mode(),
		Started:              s.Started(),
		NativeDriver:         s.NativeDriver() != nil,
		InstrumentsSessionID: s.Instruments().SessionID(),
		OutputFolder:         s.OutputFolder(),
		CreatedAt:            s.CreatedAt(),
	}
	if err := s.DriverErr(); err != nil {
		v.DriverError = err.Error()
	}
	return v
}

// CreateSession negotiates capabilities and starts a new session
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.DesiredCapabilities == nil {
		h.reject(c, errors.New("desiredCapabilities missing"))
		return
	}

	caps, err := capabilities.FromMap(req.DesiredCapabilities)
	if err != nil {
		h.reject(c, err)
		return
	}

	done := h.metrics.Track("session.create")
	s, err := h.sessions.Create(c.Request.Context(), caps)
	done(err)
	if err != nil {
		h.logger.Warn("Session creation failed", zap.Error(err))
		fail(c, "", err)
		return
	}

	c.Header("Location", "/wd/hub/session/"+s.ID().String())
	respond(c, http.StatusOK, s.ID().String(), s.Capabilities().ToMap())
}

func (h *Handlers) reject(c *gin.Context, err error) {
	h.metrics.Rejected(session.ReasonInvalidRequest)
	fail(c, "", &session.NotCreatedError{Reason: session.ReasonInvalidRequest, Err: err})
}

// ListSessions lists every live session, oldest first
func (h *Handlers) ListSessions(c *gin.Context) {
	list := h.sessions.List()
	views := make([]SessionView, 0, len(list))
	for _, s := range list {
		views = append(views, viewOf(s))
	}
	respond(c, http.StatusOK, "", views)
}

// GetSession returns the negotiated capabilities of a session
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, s.ID().String(), viewOf(s))
}

// DeleteSession stops a session and forgets it
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("id")

	// teardown outlives a client that hangs up
	ctx := context.WithoutCancel(c.Request.Context())

	done := h.metrics.Track("session.delete")
	err := h.sessions.Delete(ctx, id)
	done(err)
	if err != nil {
		fail(c, id, err)
		return
	}
	respond(c, http.StatusOK, id, nil)
}

// GetContext returns the session's working mode
func (h *Handlers) GetContext(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, s.ID().String(), s.Mode())
}

// SetContext switches the session's working mode
func (h *Handlers) SetContext(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var req ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, s.ID().String(), err)
		return
	}
	mode, err := session.ParseMode(req.Name)
	if err != nil {
		fail(c, s.ID().String(), err)
		return
	}

	s.SetMode(mode)
	respond(c, http.StatusOK, s.ID().String(), nil)
}

// GetConfiguration returns the settings stored for one mode
func (h *Handlers) GetConfiguration(c *gin.Context) {
	s, mode, ok := h.lookupMode(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, s.ID().String(), s.Conf(mode).Snapshot())
}

// SetConfiguration merges settings into one mode's store
func (h *Handlers) SetConfiguration(c *gin.Context) {
	s, mode, ok := h.lookupMode(c)
	if !ok {
		return
	}

	var values map[string]interface{}
	if err := c.ShouldBindJSON(&values); err != nil {
		badRequest(c, s.ID().String(), err)
		return
	}

	s.Conf(mode).SetAll(values)
	respond(c, http.StatusOK, s.ID().String(), nil)
}

func (h *Handlers) lookup(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	s, err := h.sessions.Get(id)
	if err != nil {
		fail(c, id, err)
		return nil, false
	}
	return s, true
}

func (h *Handlers) lookupMode(c *gin.Context) (*session.Session, session.Mode, bool) {
	s, ok := h.lookup(c)
	if !ok {
		return nil, session.Mode{}, false
	}
	mode, err := session.ParseMode(c.Param("mode"))
	if err != nil {
		fail(c, s.ID().String(), err)
		return nil, session.Mode{}, false
	}
	return s, mode, true
}
