package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func echoHandler(_ context.Context, args Args) (map[string]any, error) {
	return map[string]any{"name": args.String("name")}, nil
}

func nameTool(n Name) Tool {
	return Tool{
		Name:        n,
		Description: "test tool",
		Parameters:  ObjectSchema(Param{Name: "name", Description: "Name of the person.", Required: true}),
		Handler:     echoHandler,
	}
}

func TestName_IsValid(t *testing.T) {
	t.Parallel()
	for _, n := range []Name{CheckForComplaint, AddComplaint, GetComplaintDetails, GetWeather} {
		if !n.IsValid() {
			t.Errorf("%q should be valid", n)
		}
	}
	for _, n := range []Name{"", "roll", "Check_For_Complaint"} {
		if n.IsValid() {
			t.Errorf("%q should not be valid", n)
		}
	}
}

func TestObjectSchema(t *testing.T) {
	t.Parallel()
	s := ObjectSchema(
		Param{Name: "name", Description: "n", Required: true},
		Param{Name: "note", Description: "optional"},
	)
	if s.Type != "object" {
		t.Errorf("Type = %q, want object", s.Type)
	}
	if len(s.Required) != 1 || s.Required[0] != "name" {
		t.Errorf("Required = %v, want [name]", s.Required)
	}
	if s.Properties["note"].Type != "string" {
		t.Errorf("note type = %q", s.Properties["note"].Type)
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tools   []Tool
		wantErr string
	}{
		{name: "valid", tools: []Tool{nameTool(CheckForComplaint), nameTool(GetComplaintDetails)}},
		{name: "unknown name", tools: []Tool{nameTool("roll")}, wantErr: "unknown tool name"},
		{name: "duplicate", tools: []Tool{nameTool(AddComplaint), nameTool(AddComplaint)}, wantErr: "duplicate"},
		{
			name:    "nil handler",
			tools:   []Tool{{Name: GetWeather, Parameters: ObjectSchema()}},
			wantErr: "handler is nil",
		},
		{
			name:    "missing schema",
			tools:   []Tool{{Name: GetWeather, Handler: echoHandler}},
			wantErr: "object schema",
		},
		{
			name: "undeclared required",
			tools: []Tool{{
				Name:       GetWeather,
				Handler:    echoHandler,
				Parameters: &jsonschema.Schema{Type: "object", Required: []string{"location"}},
			}},
			wantErr: "not declared",
		},
		{
			name: "non-string required",
			tools: []Tool{{
				Name:    GetWeather,
				Handler: echoHandler,
				Parameters: &jsonschema.Schema{
					Type:       "object",
					Properties: map[string]*jsonschema.Schema{"days": {Type: "integer"}},
					Required:   []string{"days"},
				},
			}},
			wantErr: "must be a string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewRegistry(tt.tools...)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewRegistry: %v", err)
				}
				if len(r.Tools()) != len(tt.tools) {
					t.Errorf("Tools() = %d, want %d", len(r.Tools()), len(tt.tools))
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("NewRegistry error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewRegistry_ReportsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := NewRegistry(nameTool("a"), nameTool("b"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `"a"`) || !strings.Contains(err.Error(), `"b"`) {
		t.Errorf("error %q should mention both tools", err)
	}
}

func TestRegistry_LookupAndDeclarations(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(nameTool(CheckForComplaint), nameTool(GetComplaintDetails))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, ok := r.Lookup("check_for_complaint"); !ok {
		t.Error("Lookup(check_for_complaint) should succeed")
	}
	if _, ok := r.Lookup("get_weather"); ok {
		t.Error("Lookup(get_weather) should fail for an unregistered tool")
	}

	decls := r.Declarations()
	if len(decls) != 2 {
		t.Fatalf("Declarations() = %d, want 2", len(decls))
	}
	if decls[0].Name != "check_for_complaint" || decls[1].Name != "get_complaint_details" {
		t.Errorf("declarations out of order: %s, %s", decls[0].Name, decls[1].Name)
	}
	if decls[0].Parameters == nil || decls[0].Description != "test tool" {
		t.Errorf("declaration = %+v", decls[0])
	}
	if names := r.Names(); len(names) != 2 || names[0] != CheckForComplaint {
		t.Errorf("Names() = %v", names)
	}
}

func TestRegistry_CheckArgs(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(nameTool(CheckForComplaint))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		name string
		tool string
		args map[string]any
		want error
	}{
		{name: "ok", tool: "check_for_complaint", args: map[string]any{"name": "Ada"}},
		{name: "extra args allowed", tool: "check_for_complaint", args: map[string]any{"name": "Ada", "x": 1.0}},
		{name: "nil args", tool: "check_for_complaint", want: ErrInvalidArgs},
		{name: "missing", tool: "check_for_complaint", args: map[string]any{}, want: ErrInvalidArgs},
		{name: "wrong type", tool: "check_for_complaint", args: map[string]any{"name": 42.0}, want: ErrInvalidArgs},
		{name: "unknown tool", tool: "roll", args: map[string]any{"name": "Ada"}, want: ErrUnknownTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := r.CheckArgs(tt.tool, tt.args)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("CheckArgs: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("CheckArgs = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegistry_Call(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(nameTool(GetComplaintDetails))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	got, err := r.Call(context.Background(), "get_complaint_details", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got["name"] != "Ada" {
		t.Errorf("Call result = %v", got)
	}

	if _, err := r.Call(context.Background(), "get_complaint_details", nil); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("Call with nil args = %v, want ErrInvalidArgs", err)
	}
}

func TestArgs_String(t *testing.T) {
	t.Parallel()
	a := Args{"s": "v", "n": 1.0}
	if a.String("s") != "v" || a.String("n") != "" || a.String("missing") != "" {
		t.Errorf("String() returned unexpected values")
	}
}
