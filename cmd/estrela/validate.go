package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/estrelajs/vite-plugin-estrela/pkg/sourcemap"
)

// ErrInvalidMaps is returned when at least one map failed validation.
var ErrInvalidMaps = errors.New("invalid source maps")

func newValidateCmd() *cobra.Command {
	var showSchema bool

	cmd := &cobra.Command{
		Use:   "validate <map.json...>",
		Short: "Validate source map files",
		Long: `Validate revision 3 source map files against the embedded JSON schema and
check that every mapping segment decodes and references a declared source.

Examples:
  estrela validate dist/app.js.map
  estrela validate --schema                # Print the embedded schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showSchema {
				_, err := cmd.OutOrStdout().Write(sourcemap.Schema())

				return err
			}

			if len(args) == 0 {
				return fmt.Errorf("%w: no files given", ErrInvalidMaps)
			}

			return runValidate(cmd, args)
		},
	}

	cmd.Flags().BoolVar(&showSchema, "schema", false, "print the embedded source map schema and exit")

	return cmd
}

func runValidate(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	failed := 0

	for _, path := range paths {
		data, err := os.ReadFile(filepath.Clean(path))
		if err == nil {
			err = sourcemap.Validate(data)
		}

		if err != nil {
			failed++

			color.New(color.FgRed).Fprintf(out, "✗ %s: %v\n", path, err)

			continue
		}

		color.New(color.FgGreen).Fprintf(out, "✓ %s\n", path)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidMaps, failed, len(paths))
	}

	return nil
}
