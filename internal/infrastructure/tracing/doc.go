/*
Package tracing provides lightweight request tracing.

Spans are created per HTTP request and around session creation and
teardown, carried through context.Context, and written to the structured
log once finished. Trace context propagates through the X-Trace-ID and
X-Span-ID headers.

# Usage

	tracer := tracing.New("iosdriver", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	ctx, span := tracer.Start(ctx, "session.create")
	s, err := create(ctx)
	span.End(err)
*/
package tracing
