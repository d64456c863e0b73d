// Package tools defines the shared [Tool] type and the [Registry] the
// dispatcher and the MCP server resolve model tool calls against.
//
// Tool names form a closed set ([Name]); a registry refuses to start with a
// name outside that set, so an unknown name at call time can only come from
// the model and is handled by the caller's default branch.
package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

// Name identifies a tool the model may call.
type Name string

const (
	CheckForComplaint   Name = "check_for_complaint"
	AddComplaint        Name = "add_complaint"
	GetComplaintDetails Name = "get_complaint_details"
	GetWeather          Name = "get_weather"
)

// IsValid reports whether n is a known tool name.
func (n Name) IsValid() bool {
	switch n {
	case CheckForComplaint, AddComplaint, GetComplaintDetails, GetWeather:
		return true
	default:
		return false
	}
}

// Sentinel errors returned by [Registry.Call] and [Registry.CheckArgs].
var (
	ErrUnknownTool = errors.New("tools: unknown tool")
	ErrInvalidArgs = errors.New("tools: invalid arguments")
)

// Args is the decoded argument object of a tool call.
type Args map[string]any

// String returns the string argument key, or "" if it is absent or not a string.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Handler executes a tool. args have already been checked against the tool's
// parameter schema. The returned map becomes the tool response payload.
// Implementations must be safe for concurrent use and must respect context
// cancellation.
type Handler func(ctx context.Context, args Args) (map[string]any, error)

// Tool is a model-callable function: its schema plus the handler that runs it.
type Tool struct {
	Name        Name
	Description string

	// Parameters is the JSON schema of the argument object. Every required
	// parameter must be declared as a string property.
	Parameters *jsonschema.Schema

	Handler Handler
}

// Param describes one string parameter for [ObjectSchema].
type Param struct {
	Name        string
	Description string
	Required    bool
}

// ObjectSchema builds an object schema whose properties are all strings.
func ObjectSchema(params ...Param) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, p := range params {
		s.Properties[p.Name] = &jsonschema.Schema{Type: "string", Description: p.Description}
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// ─── Registry ────────────────────────────────────────────────────────────────

type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Registry is an immutable set of tools keyed by name. It is safe for
// concurrent use.
type Registry struct {
	entries map[Name]entry
	order   []Name
}

// NewRegistry validates ts and builds a registry. All problems are reported
// together.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{entries: make(map[Name]entry, len(ts))}
	var errs []error
	for _, t := range ts {
		if err := validateTool(t); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := r.entries[t.Name]; dup {
			errs = append(errs, fmt.Errorf("tools: duplicate tool %q", t.Name))
			continue
		}
		resolved, err := t.Parameters.Resolve(nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("tools: %s: resolve schema: %w", t.Name, err))
			continue
		}
		r.entries[t.Name] = entry{tool: t, resolved: resolved}
		r.order = append(r.order, t.Name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func validateTool(t Tool) error {
	if !t.Name.IsValid() {
		return fmt.Errorf("tools: unknown tool name %q", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: %s: handler is nil", t.Name)
	}
	if t.Parameters == nil || t.Parameters.Type != "object" {
		return fmt.Errorf("tools: %s: parameters must be an object schema", t.Name)
	}
	for _, req := range t.Parameters.Required {
		prop, ok := t.Parameters.Properties[req]
		if !ok {
			return fmt.Errorf("tools: %s: required parameter %q is not declared", t.Name, req)
		}
		if prop.Type != "string" {
			return fmt.Errorf("tools: %s: required parameter %q must be a string, got %q", t.Name, req, prop.Type)
		}
	}
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	e, ok := r.entries[Name(name)]
	return e.tool, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entries[n].tool)
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []Name {
	return slices.Clone(r.order)
}

// Declarations returns the schemas offered to the model at session setup.
func (r *Registry) Declarations() []s2s.ToolDeclaration {
	decls := make([]s2s.ToolDeclaration, 0, len(r.order))
	for _, n := range r.order {
		t := r.entries[n].tool
		decls = append(decls, s2s.ToolDeclaration{
			Name:        string(t.Name),
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

// CheckArgs verifies that args satisfy the parameter schema of the named
// tool: every required parameter present and a string, and the object as a
// whole valid. Absent args count as an empty object.
func (r *Registry) CheckArgs(name string, args map[string]any) error {
	e, ok := r.entries[Name(name)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	for _, req := range e.tool.Parameters.Required {
		v, present := args[req]
		if !present {
			return fmt.Errorf("%w: %s: missing %q", ErrInvalidArgs, name, req)
		}
		if _, isString := v.(string); !isString {
			return fmt.Errorf("%w: %s: %q must be a string", ErrInvalidArgs, name, req)
		}
	}
	if err := e.resolved.Validate(args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArgs, name, err)
	}
	return nil
}

// Call checks args and runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if err := r.CheckArgs(name, args); err != nil {
		return nil, err
	}
	return r.entries[Name(name)].tool.Handler(ctx, Args(args))
}
