package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of every observed response.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedRoute labels requests no [http.ServeMux] pattern claimed. Raw
// paths are never used as labels.
const unmatchedRoute = "unmatched"

// quietRoutes are scraped constantly and only logged at debug level.
var quietRoutes = map[string]bool{
	"GET /health":  true,
	"GET /readyz":  true,
	"GET /metrics": true,
}

// statusWriter remembers the first status code written through it.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}

// Middleware wraps a mux so that each request runs inside a server span
// continued from any incoming W3C traceparent. The trace ID is returned in
// [CorrelationHeader]. Request duration is recorded per mux pattern and
// status, 5xx responses fail the span, and every request is logged. A nil
// log uses slog.Default.
func Middleware(m *Metrics, log *slog.Logger) func(http.Handler) http.Handler {
	o := &httpObserver{metrics: m, log: log, prop: propagation.TraceContext{}}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			o.serve(next, w, r)
		})
	}
}

type httpObserver struct {
	metrics *Metrics
	log     *slog.Logger
	prop    propagation.TextMapPropagator
}

func (o *httpObserver) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	began := time.Now()

	ctx := o.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	if id := CorrelationID(ctx); id != "" {
		w.Header().Set(CorrelationHeader, id)
	}

	// The mux stores the matched pattern on the request it is handed.
	req := r.WithContext(ctx)
	sw := &statusWriter{ResponseWriter: w}
	next.ServeHTTP(sw, req)

	route := req.Pattern
	if route == "" {
		route = unmatchedRoute
	}
	status := sw.status()
	elapsed := time.Since(began)

	span.SetName(route)
	span.SetAttributes(
		semconv.HTTPRoute(route),
		semconv.HTTPResponseStatusCode(status),
	)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}

	o.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))

	level := slog.LevelInfo
	switch {
	case status >= http.StatusInternalServerError:
		level = slog.LevelError
	case quietRoutes[route]:
		level = slog.LevelDebug
	}
	Logger(ctx, o.log).LogAttrs(ctx, level, "http request",
		slog.String("route", route),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("took", elapsed),
	)
}
