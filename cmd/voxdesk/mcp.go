package main

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/internal/dispatch"
	"github.com/MrWong99/voxdesk/internal/mcpserver"
	"github.com/MrWong99/voxdesk/internal/observe"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the profile's tools over MCP on stdin/stdout",
		Long: `Run an MCP server on stdin/stdout exposing the tools of the configured
profile. Logs go to stderr so the protocol stream stays clean.

Example client entry:
  {"command": "voxdesk", "args": ["mcp", "--config", "voxdesk.yaml"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(flags)
			if err != nil {
				return err
			}
			return a.serveMCP(cmd.Context())
		},
	}
}

func (a *app) serveMCP(ctx context.Context) error {
	metrics := observe.DefaultMetrics()
	ts, err := buildToolset(ctx, a.cfg, newRegistry(a.log), metrics, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := ts.close(); err != nil {
			a.log.Warn("closing complaint store", "err", err)
		}
	}()

	srv := mcpserver.New(ts.registry, version,
		mcpserver.WithLogger(a.log),
		mcpserver.WithDispatcher(dispatch.New(ts.registry,
			dispatch.WithLogger(a.log),
			dispatch.WithMetrics(metrics),
		)),
	)
	return srv.Run(ctx, &mcpsdk.StdioTransport{})
}
