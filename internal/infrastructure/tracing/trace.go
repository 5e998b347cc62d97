package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/shared/id"
)

// Propagation headers.
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

const bufferSize = 1024

type (
	TraceID string
	SpanID  string
)

// Span times one operation. End reports it to the tracer that started it.
type Span struct {
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   int
	Err      error

	tracer *Tracer
	fields []zap.Field
}

// Tag attaches a key/value pair to the span's log entry.
func (s *Span) Tag(key, value string) {
	s.fields = append(s.fields, zap.String(key, value))
}

// End stops the clock, records err if any and hands the span off. Calling
// End more than once reports the span once.
func (s *Span) End(err error) {
	if s.tracer == nil {
		return
	}
	s.Duration = time.Since(s.Start)
	if err != nil {
		s.Err = err
	}
	t := s.tracer
	s.tracer = nil
	t.submit(s)
}

// Tracer writes finished spans to the log from a single goroutine.
type Tracer struct {
	service string
	logger  *logging.Logger

	mu     sync.RWMutex
	closed bool
	spans  chan *Span
	done   chan struct{}
}

// New starts a tracer for service.
func New(service string, logger *logging.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logging.OrNop(logger).Named("trace"),
		spans:   make(chan *Span, bufferSize),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Start opens a span below whatever span ctx already carries. A nil Tracer
// returns spans that are never reported.
func (t *Tracer) Start(ctx context.Context, name string) (context.Context, *Span) {
	parent := fromContext(ctx)
	trace := parent.trace
	if trace == "" {
		trace = TraceID(id.NewRequestID())
	}

	s := &Span{
		TraceID:  trace,
		SpanID:   SpanID(id.NewRequestID()),
		ParentID: parent.span,
		Name:     name,
		Start:    time.Now(),
		tracer:   t,
	}
	return context.WithValue(ctx, ctxKey{}, spanContext{trace: s.TraceID, span: s.SpanID}), s
}

func (t *Tracer) submit(s *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	select {
	case t.spans <- s:
	default:
		t.logger.Warn("Span buffer full, dropping span",
			zap.String("trace_id", string(s.TraceID)),
			zap.String("operation", s.Name),
		)
	}
}

// Close writes out the spans already submitted and stops the tracer.
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.done
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()
	<-t.done
}

func (t *Tracer) run() {
	defer close(t.done)
	for s := range t.spans {
		t.write(s)
	}
}

func (t *Tracer) write(s *Span) {
	fields := append([]zap.Field{
		zap.String("service", t.service),
		zap.String("trace_id", string(s.TraceID)),
		zap.String("span_id", string(s.SpanID)),
		zap.String("operation", s.Name),
		zap.Duration("duration", s.Duration),
	}, s.fields...)
	if s.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(s.ParentID)))
	}
	if s.Status != 0 {
		fields = append(fields, zap.Int("status", s.Status))
	}

	if s.Err != nil {
		t.logger.Warn("Span failed", append(fields, zap.Error(s.Err))...)
		return
	}
	t.logger.Debug("Span finished", fields...)
}

type ctxKey struct{}

type spanContext struct {
	trace TraceID
	span  SpanID
}

func fromContext(ctx context.Context) spanContext {
	sc, _ := ctx.Value(ctxKey{}).(spanContext)
	return sc
}

// Continue seeds ctx with a trace propagated from a caller. Empty IDs leave
// ctx unchanged.
func Continue(ctx context.Context, trace TraceID, parent SpanID) context.Context {
	if trace == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, spanContext{trace: trace, span: parent})
}

// IDs returns the trace and span carried by ctx.
func IDs(ctx context.Context) (TraceID, SpanID) {
	sc := fromContext(ctx)
	return sc.trace, sc.span
}
