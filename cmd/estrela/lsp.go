package main

import (
	"github.com/spf13/cobra"

	"github.com/estrelajs/vite-plugin-estrela/internal/lsp"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/version"
)

func newLSPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the language server for component files (stdio)",
		Long: `Start a language server (LSP) on stdio. It publishes compile errors and
directive warnings as diagnostics, completes section tags and directives, and
documents them on hover.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts, observability.ModeLSP)
			if err != nil {
				return err
			}
			defer a.close()

			return lsp.NewServer(a.svc.Compiler(), a.providers.Logger, version.Version).Run(cmd.Context())
		},
	}
}
