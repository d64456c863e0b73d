package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voxdesk/internal/complaint"
	"github.com/MrWong99/voxdesk/internal/dispatch"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/tools"
	"github.com/MrWong99/voxdesk/internal/tools/complainttools"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s/mock"
)

// recordingHandler counts invocations per tool.
type recordingHandler struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingHandler) tool(name tools.Name, fn func(tools.Args) (map[string]any, error)) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: "test",
		Parameters:  tools.ObjectSchema(tools.Param{Name: "name", Required: true}),
		Handler: func(_ context.Context, args tools.Args) (map[string]any, error) {
			r.mu.Lock()
			r.calls = append(r.calls, string(name))
			r.mu.Unlock()
			return fn(args)
		},
	}
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newDispatcher(t *testing.T, ts ...tools.Tool) *dispatch.Dispatcher {
	t.Helper()
	reg, err := tools.NewRegistry(ts...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return dispatch.New(reg)
}

func TestHandle_ComplaintRoundTrip(t *testing.T) {
	t.Parallel()
	store := complaint.NewMemStore()
	d := newDispatcher(t, complainttools.Tools(store)...)
	ctx := context.Background()

	got := d.Handle(ctx, []s2s.FunctionCall{
		{ID: "1", Name: "add_complaint", Args: map[string]any{"name": "Alice", "address": "Berlin"}},
		{ID: "2", Name: "check_for_complaint", Args: map[string]any{"name": "Alice"}},
		{ID: "3", Name: "get_complaint_details", Args: map[string]any{"name": "Alice"}},
	})
	if len(got) != 3 {
		t.Fatalf("responses = %d, want 3", len(got))
	}
	if got[0].ID != "1" || got[0].Name != "add_complaint" {
		t.Errorf("response 0 = %+v", got[0])
	}
	if got[0].Response["response"] != "Stored the address of Alice as Berlin" {
		t.Errorf("add response = %v", got[0].Response)
	}
	if got[1].Response["exists"] != true {
		t.Errorf("check response = %v", got[1].Response)
	}
	if got[2].Response["address"] != "Berlin" {
		t.Errorf("details response = %v", got[2].Response)
	}
}

func TestHandle_DropsUnknownAndInvalid(t *testing.T) {
	t.Parallel()
	rec := &recordingHandler{}
	d := newDispatcher(t, rec.tool(tools.CheckForComplaint, func(tools.Args) (map[string]any, error) {
		return map[string]any{"exists": false}, nil
	}))

	tests := []struct {
		name string
		call s2s.FunctionCall
	}{
		{"unknown tool", s2s.FunctionCall{ID: "a", Name: "launch_rocket", Args: map[string]any{"name": "x"}}},
		{"registered enum but not in registry", s2s.FunctionCall{ID: "b", Name: "get_weather", Args: map[string]any{"name": "x"}}},
		{"nil args", s2s.FunctionCall{ID: "c", Name: "check_for_complaint"}},
		{"missing required", s2s.FunctionCall{ID: "d", Name: "check_for_complaint", Args: map[string]any{"other": "x"}}},
		{"non-string required", s2s.FunctionCall{ID: "e", Name: "check_for_complaint", Args: map[string]any{"name": 3.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Handle(context.Background(), []s2s.FunctionCall{tt.call}); len(got) != 0 {
				t.Errorf("responses = %+v, want none", got)
			}
		})
	}
	if rec.count() != 0 {
		t.Errorf("handler invoked %d times, want 0", rec.count())
	}
}

func TestHandle_PartialBatchKeepsOrder(t *testing.T) {
	t.Parallel()
	rec := &recordingHandler{}
	ok := func(a tools.Args) (map[string]any, error) { return map[string]any{"name": a.String("name")}, nil }
	d := newDispatcher(t, rec.tool(tools.CheckForComplaint, ok), rec.tool(tools.GetComplaintDetails, ok))

	got := d.Handle(context.Background(), []s2s.FunctionCall{
		{ID: "1", Name: "check_for_complaint", Args: map[string]any{"name": "A"}},
		{ID: "2", Name: "bogus", Args: map[string]any{"name": "B"}},
		{ID: "3", Name: "get_complaint_details", Args: map[string]any{}},
		{ID: "4", Name: "get_complaint_details", Args: map[string]any{"name": "D"}},
	})
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "4" {
		t.Fatalf("responses = %+v, want IDs [1 4]", got)
	}
	if got[1].Response["name"] != "D" {
		t.Errorf("response 4 = %v", got[1].Response)
	}
}

func TestHandle_HandlerErrorBecomesErrorResponse(t *testing.T) {
	t.Parallel()
	rec := &recordingHandler{}
	d := newDispatcher(t, rec.tool(tools.AddComplaint, func(tools.Args) (map[string]any, error) {
		return nil, errors.New("disk full")
	}))

	got := d.Handle(context.Background(), []s2s.FunctionCall{
		{ID: "x", Name: "add_complaint", Args: map[string]any{"name": "A"}},
	})
	if len(got) != 1 {
		t.Fatalf("responses = %d, want 1", len(got))
	}
	if got[0].Response["error"] != "disk full" {
		t.Errorf("response = %v, want error=disk full", got[0].Response)
	}
}

func TestHandle_HandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()
	rec := &recordingHandler{}
	d := newDispatcher(t, rec.tool(tools.AddComplaint, func(tools.Args) (map[string]any, error) {
		panic("boom")
	}))

	got := d.Handle(context.Background(), []s2s.FunctionCall{
		{ID: "x", Name: "add_complaint", Args: map[string]any{"name": "A"}},
	})
	if len(got) != 1 {
		t.Fatalf("responses = %d, want 1", len(got))
	}
	if _, ok := got[0].Response["error"]; !ok {
		t.Errorf("response = %v, want an error entry", got[0].Response)
	}
}

func TestHandle_NilResultBecomesEmptyObject(t *testing.T) {
	t.Parallel()
	rec := &recordingHandler{}
	d := newDispatcher(t, rec.tool(tools.AddComplaint, func(tools.Args) (map[string]any, error) {
		return nil, nil
	}))
	got := d.Handle(context.Background(), []s2s.FunctionCall{
		{ID: "x", Name: "add_complaint", Args: map[string]any{"name": "A"}},
	})
	if len(got) != 1 || got[0].Response == nil {
		t.Fatalf("responses = %+v, want one non-nil response", got)
	}
}

func TestDispatch_AlwaysSendsBatch(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession()
	d := newDispatcher(t, complainttools.Tools(complaint.NewMemStore())...)
	ctx := context.Background()

	if err := d.Dispatch(ctx, sess, []s2s.FunctionCall{{ID: "1", Name: "unknown"}}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Dispatch(ctx, sess, []s2s.FunctionCall{
		{ID: "2", Name: "check_for_complaint", Args: map[string]any{"name": "Bob"}},
	}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	batches := sess.ToolResponses()
	if len(batches) != 2 {
		t.Fatalf("batches sent = %d, want 2", len(batches))
	}
	if len(batches[0]) != 0 {
		t.Errorf("first batch = %+v, want empty", batches[0])
	}
	if len(batches[1]) != 1 || batches[1][0].Response["exists"] != false {
		t.Errorf("second batch = %+v", batches[1])
	}
}

func TestDispatch_SendError(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession()
	sess.Close()
	d := newDispatcher(t, complainttools.Tools(complaint.NewMemStore())...)

	err := d.Dispatch(context.Background(), sess, nil)
	if !errors.Is(err, s2s.ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	reg, err := tools.NewRegistry(complainttools.Tools(complaint.NewMemStore())...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	d := dispatch.New(reg, dispatch.WithMetrics(m))
	d.Handle(context.Background(), []s2s.FunctionCall{
		{ID: "1", Name: "check_for_complaint", Args: map[string]any{"name": "A"}},
		{ID: "2", Name: "nope"},
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	statuses := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "voxdesk.tool.calls" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("status")
				statuses[v.AsString()] += dp.Value
			}
		}
	}
	if statuses[dispatch.StatusOK] != 1 || statuses[dispatch.StatusUnknown] != 1 {
		t.Errorf("tool.calls by status = %v", statuses)
	}
}
