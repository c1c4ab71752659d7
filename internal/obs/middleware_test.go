package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tournetwork/storefront/internal/obs"
)

func storefrontRouter(mw ...func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw...)
	r.Route("/api/v1", func(v chi.Router) {
		v.Put("/schedules/{id}/lines/{index}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})
		v.Get("/packages/{tenantId}/{packageId}", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
	})
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestSubjectOf(t *testing.T) {
	var got obs.Subject
	capture := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			got = obs.SubjectOf(r)
		})
	}
	r := storefrontRouter(capture)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/packages/acme/42", nil))
	require.Equal(t, obs.Subject{Route: "/api/v1/packages/{tenantId}/{packageId}", Resource: "package", IDKey: "package_id", ID: "42", Tenant: "acme"}, got)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, "health", got.Resource)

	require.Equal(t, obs.Subject{Route: "unmatched", Resource: "other"}, obs.SubjectOf(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestHTTPMetricsByRouteAndClass(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("storefront", []float64{50, 1}, registry)
	again := obs.NewHTTPMetrics("storefront", nil, registry)
	require.Same(t, metrics.Requests, again.Requests)

	r := storefrontRouter(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/schedules/s1/lines/0", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodPut, "/api/v1/schedules/{id}/lines/{index}", "4xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/health/live", "2xx")))
	require.Equal(t, 2, testutil.CollectAndCount(metrics.Latency))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	r := storefrontRouter(obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/schedules/abc/lines/1", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "/api/v1/schedules/{id}/lines/{index}", line["route"])
	require.Equal(t, "abc", line["session_id"])
	require.Equal(t, float64(http.StatusConflict), line["status"])

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/packages/acme/7", nil))
	line = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "acme", line["tenant_id"])
	require.Equal(t, "7", line["package_id"])
	require.Equal(t, float64(2), line["bytes"])
}

func TestTracingNamesSpanAfterRouting(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := storefrontRouter(obs.Tracing)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/packages/acme/42", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /api/v1/packages/{tenantId}/{packageId}", spans[0].Name())
	attrs := attribute.NewSet(spans[0].Attributes()...)
	v, ok := attrs.Value("storefront.package_id")
	require.True(t, ok)
	require.Equal(t, "42", v.AsString())
	v, ok = attrs.Value("storefront.tenant_id")
	require.True(t, ok)
	require.Equal(t, "acme", v.AsString())
}

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("storefront", registry)
	obs.MustRegisterDomainMetrics("storefront", registry)

	before := testutil.ToFloat64(obs.CapacityRejections.WithLabelValues("regular"))
	obs.Inc(obs.CapacityRejections, "regular")
	obs.Inc(obs.CapacityRejections, "regular")
	require.Equal(t, before+2, testutil.ToFloat64(obs.CapacityRejections.WithLabelValues("regular")))

	obs.Inc(nil, "ignored")
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{10, 2.5}, obs.ParseBucketsCSV(" 10, x, -1,,2.5"))
	require.Empty(t, obs.ParseBucketsCSV(""))
}
