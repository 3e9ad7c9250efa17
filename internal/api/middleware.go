package api

import (
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/sacahan/trailtag/internal/log"
)

// defaultCSP is a JSON-API-appropriate policy: TrailTag's HTTP surface
// serves no HTML, so there is no stylesheet/script/image allowlist to
// maintain, unlike the teacher's browser-extension-facing CSP.
const defaultCSP = "default-src 'none'; frame-ancestors 'none'"

// securityHeaders adds the same baseline security headers the teacher's
// internal/api/middleware/security_headers.go sets, trimmed of the
// CDN-specific CSP this API has no use for.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			w.Header().Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}
		w.Header().Set("Content-Security-Policy", defaultCSP)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware mirrors the CORS policy in original_source/src/api/main.py:
// any chrome-extension:// origin, credentials allowed, every method/header.
func corsMiddleware() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return strings.HasPrefix(origin, "chrome-extension://")
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// tracing wraps next in an OpenTelemetry span per request, grounded on the
// teacher's internal/api/middleware/otel.go but using the simpler
// otelhttp.NewHandler wrapper rather than the teacher's hand-rolled
// internal/telemetry package. The process-wide SDK tracer provider it reads
// via otel.GetTracerProvider() is still installed (cmd/trailtagd wires a
// trimmed, exporter-less version of that same teacher package), just not
// the OTLP-exporter half of it, which this module has no collector to use.
func tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, otelhttp.WithTracerProvider(otel.GetTracerProvider()))
	}
}

// applyMiddleware wires the canonical stack in the teacher's
// internal/api/middleware/stack.go ordering: recoverer, CORS, security
// headers, tracing, logging. Request-ID assignment lives inside
// log.Middleware() already, so there is no separate step for it.
func applyMiddleware(h http.Handler, serviceName string) http.Handler {
	h = log.Middleware()(h)
	h = tracing(serviceName)(h)
	h = securityHeaders(h)
	h = corsMiddleware()(h)
	h = chimw.Recoverer(h)
	return h
}
