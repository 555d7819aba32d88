// Package main generates JSON schemas for the inspect report and the
// transform server payloads.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/estrelajs/vite-plugin-estrela/internal/mcp"
	"github.com/estrelajs/vite-plugin-estrela/internal/server"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

const draft = "https://json-schema.org/draft/2020-12/schema"

// generator builds one named schema.
type generator struct {
	title string
	build func(*jsonschema.ForOptions) (*jsonschema.Schema, error)
}

func generators() map[string]generator {
	return map[string]generator{
		"inspect-report":     {"Inspect report", jsonschema.For[compiler.Report]},
		"transform-request":  {"Transform request", jsonschema.For[server.TransformRequest]},
		"transform-response": {"Transform response", jsonschema.For[server.TransformResponse]},
		"error-response":     {"Error response", jsonschema.For[server.ErrorResponse]},
		"mcp-compile-result": {"estrela_compile result", jsonschema.For[mcp.CompileResult]},
	}
}

func main() {
	outputDir := flag.String("o", "docs/schemas", "output directory for schemas")
	flag.Parse()

	written, err := generate(*outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, path := range written {
		fmt.Fprintf(os.Stdout, "Generated %s\n", path)
	}
}

// generate writes every schema into dir and returns the written paths in
// name order.
func generate(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	opts := &jsonschema.ForOptions{
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeFor[json.RawMessage](): {Type: "object", Description: "source map revision 3"},
		},
	}

	gens := generators()

	names := make([]string, 0, len(gens))
	for name := range gens {
		names = append(names, name)
	}

	sort.Strings(names)

	written := make([]string, 0, len(names))

	for _, name := range names {
		gen := gens[name]

		schema, err := gen.build(opts)
		if err != nil {
			return nil, fmt.Errorf("infer %s: %w", name, err)
		}

		schema.Schema = draft
		schema.Title = gen.title

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}

		path := filepath.Join(dir, name+".json")

		if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}

		written = append(written, path)
	}

	return written, nil
}
