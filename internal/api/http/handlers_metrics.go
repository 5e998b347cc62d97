package http

import (
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/monitoring"
)

// HandlerMetrics wraps handlers with metrics tracking
type HandlerMetrics struct {
	metrics *monitoring.Metrics
}

// NewHandlerMetrics creates a metrics wrapper
func NewHandlerMetrics(metrics *monitoring.Metrics) *HandlerMetrics {
	return &HandlerMetrics{metrics: metrics}
}

// Track starts timing a session operation. The returned func records it
// with the outcome. Safe on a nil receiver.
func (hm *HandlerMetrics) Track(operation string) func(err error) {
	if hm == nil || hm.metrics == nil {
		return func(error) {}
	}
	timer := monitoring.NewTimer(hm.metrics, operation)
	return timer.Stop
}

// Rejected counts a request refused before a session was built
func (hm *HandlerMetrics) Rejected(reason string) {
	if hm == nil || hm.metrics == nil {
		return
	}
	hm.metrics.SessionRejected(reason)
}
