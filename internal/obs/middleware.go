package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// HTTPObs records request counts and latency per route.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

// Middleware is a no-op when Metrics is nil.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	if o.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		o.Metrics.InFlight.Inc()
		defer o.Metrics.InFlight.Dec()

		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := DurationMillis(time.Since(start))

		subject := SubjectOf(r)
		o.Metrics.Requests.WithLabelValues(r.Method, subject.Route, statusClass(statusOf(ww))).Inc()
		o.Metrics.Latency.WithLabelValues(subject.Resource, subject.Route).Observe(elapsed)
	})
}

// Tracing opens a server span per request and renames it to the matched
// route once the handler is done.
func Tracing(next http.Handler) http.Handler {
	named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		subject := SubjectOf(r)
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + subject.Route)
		span.SetAttributes(
			semconv.HTTPRouteKey.String(subject.Route),
			attribute.String("storefront.resource", subject.Resource),
		)
		if subject.ID != "" {
			span.SetAttributes(attribute.String("storefront."+subject.IDKey, subject.ID))
		}
		if subject.Tenant != "" {
			span.SetAttributes(attribute.String("storefront.tenant_id", subject.Tenant))
		}
	})
	return otelhttp.NewHandler(named, "http.server")
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if code := ww.Status(); code != 0 {
		return code
	}
	return http.StatusOK
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
