// Package mcpserver exposes a [tools.Registry] as an MCP server, so MCP
// clients can drive the same complaint and weather tools the voice session
// uses.
//
// Calls go through the same [dispatch.Dispatcher] as model tool calls.
// Arguments that fail the registry's schema check produce an error result
// instead of being dropped, since an MCP client always expects an answer.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxdesk/internal/dispatch"
	"github.com/MrWong99/voxdesk/internal/tools"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
)

// Name is the implementation name announced to clients.
const Name = "voxdesk"

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithDispatcher replaces the dispatcher used to run calls. The default is
// dispatch.New(reg).
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(s *Server) { s.dispatcher = d }
}

// Server wraps an MCP SDK server with one MCP tool per registry tool.
type Server struct {
	reg        *tools.Registry
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	srv        *mcpsdk.Server
}

// New builds a server for reg. version is announced in the initialize
// handshake.
func New(reg *tools.Registry, version string, opts ...Option) *Server {
	s := &Server{reg: reg, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = dispatch.New(reg, dispatch.WithLogger(s.log))
	}

	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: Name, Version: version}, nil)
	for _, t := range reg.Tools() {
		s.srv.AddTool(&mcpsdk.Tool{
			Name:        string(t.Name),
			Description: t.Description,
			InputSchema: t.Parameters,
		}, s.handler(string(t.Name)))
	}
	return s
}

// Run serves a single client over t until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	s.log.Info("mcp server starting", "tools", len(s.reg.Names()))
	if err := s.srv.Run(ctx, t); err != nil {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// Connect starts a session over t without blocking. Used with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	ss, err := s.srv.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: connect: %w", err)
	}
	return ss, nil
}

func (s *Server) handler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}
		if err := s.reg.CheckArgs(name, args); err != nil {
			s.log.Warn("rejecting mcp tool call", "tool", name, "err", err)
			return errorResult(err.Error()), nil
		}

		responses := s.dispatcher.Handle(ctx, []s2s.FunctionCall{{Name: name, Args: args}})
		if len(responses) == 0 {
			return errorResult("tool call was dropped"), nil
		}
		payload := responses[0].Response
		text, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: encode %s result: %w", name, err)
		}
		_, failed := payload["error"]
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
			IsError: failed,
		}, nil
	}
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	text, _ := json.Marshal(map[string]any{"error": msg})
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
		IsError: true,
	}
}
