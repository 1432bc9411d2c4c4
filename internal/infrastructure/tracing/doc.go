/*
Package tracing tags each HTTP request with a request ID and writes one
structured access log line per request.

# Usage

	tracer := tracing.New("vfs", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

Handlers reach the ID through the request context:

	log := tracing.Logger(c.Request.Context(), logger)

# Propagation

The X-Request-ID header is accepted from callers when it carries a valid
"req_" prefixed ULID and is always set on the response.

Spans are buffered (1000) and logged asynchronously; when the buffer is
full the span is dropped with a warning.
*/
package tracing
