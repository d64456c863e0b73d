// Package observe wires OpenTelemetry metrics and tracing for voxdesk and
// provides the HTTP middleware used by the webhook server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus format by [InitProvider] and [MetricsHandler]. Tests should build
// their own [Metrics] with [NewMetrics] and a ManualReader rather than use
// [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/voxdesk"

// Metrics holds all OpenTelemetry instruments of the application. The
// instruments handle their own synchronisation.
type Metrics struct {
	// --- Audio pipeline ---

	// FramesDropped counts microphone frames discarded because the outbound
	// queue was full.
	FramesDropped metric.Int64Counter

	// FramesSent counts audio frames written to the model session.
	FramesSent metric.Int64Counter

	// PlaybackUnderruns counts output callbacks that had to be zero-padded.
	PlaybackUnderruns metric.Int64Counter

	// DeviceGlitches counts device callbacks with a non-zero status. Use with
	//   attribute.String("direction", "input"|"output")
	DeviceGlitches metric.Int64Counter

	// --- Session ---

	// Turns counts completed model turns.
	Turns metric.Int64Counter

	// ActiveSessions tracks the number of live model sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Tools ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolDuration tracks handler latency.
	ToolDuration metric.Float64Histogram

	// WeatherLookups counts weather API lookups by outcome.
	WeatherLookups metric.Int64Counter

	// WeatherDuration tracks weather API latency.
	WeatherDuration metric.Float64Histogram

	// CircuitTransitions counts circuit breaker state changes. Use with
	//   attribute.String("name", ...), attribute.String("to", ...)
	CircuitTransitions metric.Int64Counter

	// --- HTTP ---

	// WebhookEvents counts webhook requests by outcome.
	WebhookEvents metric.Int64Counter

	// HTTPRequestDuration is labelled with method, mux route and status code.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates every instrument using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.FramesDropped, "voxdesk.audio.frames_dropped", "Microphone frames dropped because the outbound queue was full."},
		{&met.FramesSent, "voxdesk.audio.frames_sent", "Audio frames sent to the model session."},
		{&met.PlaybackUnderruns, "voxdesk.audio.playback_underruns", "Playback callbacks padded with silence."},
		{&met.DeviceGlitches, "voxdesk.audio.device_glitches", "Audio device callbacks reporting over- or underflow."},
		{&met.Turns, "voxdesk.session.turns", "Completed model turns."},
		{&met.ToolCalls, "voxdesk.tool.calls", "Tool invocations by tool name and status."},
		{&met.WeatherLookups, "voxdesk.weather.lookups", "Weather API lookups by outcome."},
		{&met.CircuitTransitions, "voxdesk.circuit.transitions", "Circuit breaker state transitions."},
		{&met.WebhookEvents, "voxdesk.webhook.events", "Webhook requests by outcome."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxdesk.session.active",
		metric.WithDescription("Number of live model sessions."),
	); err != nil {
		return nil, err
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.ToolDuration, "voxdesk.tool.duration", "Latency of tool handlers."},
		{&met.WeatherDuration, "voxdesk.weather.duration", "Latency of weather API lookups."},
		{&met.HTTPRequestDuration, "voxdesk.http.request.duration", "HTTP request latency by method, route and status."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on first
// call from [otel.GetMeterProvider]. Call [InitProvider] first if the metrics
// should be exported.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one tool invocation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordGlitches adds n device glitches for direction.
func (m *Metrics) RecordGlitches(ctx context.Context, direction string, n uint64) {
	if n == 0 {
		return
	}
	m.DeviceGlitches.Add(ctx, int64(n), metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordWeatherLookup records a weather lookup outcome and latency.
func (m *Metrics) RecordWeatherLookup(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.WeatherLookups.Add(ctx, 1, attrs)
	m.WeatherDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCircuitTransition records a breaker moving to state to.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, name, to string) {
	m.CircuitTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("to", to),
	))
}

// RecordWebhookEvent records a webhook request outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, outcome string) {
	m.WebhookEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
