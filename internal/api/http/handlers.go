package http

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/iosdriver/internal/domain/application"
	"github.com/GriffinCanCode/iosdriver/internal/domain/host"
	"github.com/GriffinCanCode/iosdriver/internal/domain/session"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/monitoring"
)

// Version is reported by the status resource.
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	sessions *session.Manager
	host     *host.Info
	catalog  *application.Catalog
	metrics  *HandlerMetrics
	logger   *logging.Logger
}

// NewHandlers creates a new handler set. metrics may be nil.
func NewHandlers(
	sessions *session.Manager,
	hostInfo *host.Info,
	catalog *application.Catalog,
	metrics *HandlerMetrics,
	logger *logging.Logger,
) *Handlers {
	return &Handlers{
		sessions: sessions,
		host:     hostInfo,
		catalog:  catalog,
		metrics:  metrics,
		logger:   logging.OrNop(logger).Named("api"),
	}
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	hub := r.Group("/wd/hub")
	hub.GET("/status", h.Status)
	hub.GET("/sessions", h.ListSessions)
	hub.POST("/session", h.CreateSession)

	s := hub.Group("/session/:id")
	s.GET("", h.GetSession)
	s.DELETE("", h.DeleteSession)
	s.GET("/context", h.GetContext)
	s.POST("/context", h.SetContext)
	s.GET("/configuration/:mode", h.GetConfiguration)
	s.POST("/configuration/:mode", h.SetConfiguration)
	s.GET("/log", h.GetLog)
	s.GET("/artifacts", h.ListArtifacts)
	s.GET("/artifact/*path", h.GetArtifact)
}

// Root handles the liveness probe
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "iosdriver",
		"version": Version,
	})
}

// Health reports server health with session counts
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":       "healthy",
		"sessions":     h.sessions.Len(),
		"applications": h.catalog.Len(),
		"sdks":         h.host.InstalledSDKs(),
	}
	if snap, ok := h.metrics.snapshot(); ok {
		body["metrics"] = snap
	}
	c.JSON(http.StatusOK, body)
}

// Status serves the WebDriver status resource
func (h *Handlers) Status(c *gin.Context) {
	respond(c, http.StatusOK, "", gin.H{
		"build": gin.H{"version": Version},
		"os": gin.H{
			"name": runtime.GOOS,
			"arch": runtime.GOARCH,
		},
		"ios": gin.H{
			"simulatorVersion": h.host.DefaultSDK(),
			"sdks":             h.host.InstalledSDKs(),
		},
		"sessions": h.sessions.Len(),
	})
}

func (hm *HandlerMetrics) snapshot() (monitoring.Snapshot, bool) {
	if hm == nil || hm.metrics == nil {
		return monitoring.Snapshot{}, false
	}
	return hm.metrics.Snapshot(), true
}
