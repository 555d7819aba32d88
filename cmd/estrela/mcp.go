package main

import (
	"github.com/spf13/cobra"

	"github.com/estrelajs/vite-plugin-estrela/internal/mcp"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/version"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

Tools:
  - estrela_compile: compile a component to a JavaScript module with its source map
  - estrela_inspect: report a component's tag, sections, regions and directives`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer a.close()

			red, err := observability.NewREDMetrics(a.providers.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Service: a.svc,
				Version: version.Version,
				Logger:  a.providers.Logger,
				Metrics: red,
				Tracer:  a.providers.Tracer,
			})

			return srv.Run(cmd.Context())
		},
	}
}
