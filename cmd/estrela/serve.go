package main

import (
	"github.com/spf13/cobra"

	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/internal/server"
	"github.com/estrelajs/vite-plugin-estrela/pkg/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP transform server",
		Long: `Start an HTTP server that compiles components for dev servers and bundler
plugins.

Endpoints:
  POST /api/transform   {"code": "...", "id": "src/app.estrela"} -> {"code", "map", "handled"}
  POST /api/inspect     {"code": "...", "id": "src/app.estrela"} -> inspect report
  GET  /healthz         liveness
  GET  /readyz          readiness
  GET  /metrics         Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts, observability.ModeServe)
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr()
			}

			srv := server.New(a.svc, server.Config{
				Addr:         addr,
				Version:      version.Version,
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
				IdleTimeout:  a.cfg.Server.IdleTimeout,
				MaxBody:      a.maxFileSize,
				Metrics:      a.providers.MetricsHandler,
			}, a.providers.Tracer, a.providers.Logger)

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: config server.host:server.port)")

	return cmd
}
