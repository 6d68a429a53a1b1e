package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPMiddleware wraps an http.Handler with server-side tracing. Route
// patterns become span names via the operation label.
func HTTPMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "quill.http")
}
