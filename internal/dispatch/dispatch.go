// Package dispatch turns a batch of model tool calls into one batch of tool
// responses.
//
// Calls naming an unknown tool or carrying arguments that do not satisfy the
// tool's schema are logged and dropped without a response. A handler error
// becomes an {"error": msg} response for that call. The response batch is
// always sent, even when empty.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/tools"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

// Status labels recorded per call.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusUnknown     = "unknown_tool"
	StatusInvalidArgs = "invalid_args"
)

// Sender delivers a response batch to the model. [s2s.Session] satisfies it.
type Sender interface {
	SendToolResponses(ctx context.Context, responses []s2s.FunctionResponse) error
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics records per-call counters and latency into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher resolves tool calls against a [tools.Registry]. It is safe for
// concurrent use.
type Dispatcher struct {
	reg     *tools.Registry
	log     *slog.Logger
	metrics *observe.Metrics
}

// New returns a Dispatcher for reg.
func New(reg *tools.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg, log: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle runs every call in order and returns the responses produced. Dropped
// calls contribute nothing, so the result may be shorter than calls.
func (d *Dispatcher) Handle(ctx context.Context, calls []s2s.FunctionCall) []s2s.FunctionResponse {
	responses := make([]s2s.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		if resp, ok := d.handleOne(ctx, call); ok {
			responses = append(responses, resp)
		}
	}
	return responses
}

// Dispatch handles calls and sends the resulting batch through sender.
func (d *Dispatcher) Dispatch(ctx context.Context, sender Sender, calls []s2s.FunctionCall) error {
	responses := d.Handle(ctx, calls)
	if err := sender.SendToolResponses(ctx, responses); err != nil {
		return fmt.Errorf("dispatch: send %d tool response(s): %w", len(responses), err)
	}
	return nil
}

func (d *Dispatcher) handleOne(ctx context.Context, call s2s.FunctionCall) (s2s.FunctionResponse, bool) {
	ctx, span := observe.StartSpan(ctx, "tool "+call.Name)
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name), attribute.String("tool.call_id", call.ID))

	log := observe.Logger(ctx, d.log).With("tool", call.Name, "call_id", call.ID)
	start := time.Now()

	if err := d.reg.CheckArgs(call.Name, call.Args); err != nil {
		status := StatusInvalidArgs
		if errors.Is(err, tools.ErrUnknownTool) {
			status = StatusUnknown
		}
		log.Warn("dropping tool call", "reason", status, "err", err)
		span.SetStatus(codes.Error, status)
		d.record(ctx, call.Name, status, start)
		return s2s.FunctionResponse{}, false
	}

	result, err := d.invoke(ctx, call)
	status := StatusOK
	if err != nil {
		status = StatusError
		log.Error("tool handler failed", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = map[string]any{"error": err.Error()}
	} else {
		log.Debug("tool call handled", "duration", time.Since(start))
	}
	if result == nil {
		result = map[string]any{}
	}
	d.record(ctx, call.Name, status, start)

	return s2s.FunctionResponse{ID: call.ID, Name: call.Name, Response: result}, true
}

// invoke runs the handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, call s2s.FunctionCall) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool handler panicked", "tool", call.Name, "panic", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return d.reg.Call(ctx, call.Name, call.Args)
}

func (d *Dispatcher) record(ctx context.Context, tool, status string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordToolCall(ctx, tool, status, time.Since(start))
}
