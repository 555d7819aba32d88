package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
	"github.com/estrelajs/vite-plugin-estrela/pkg/sourcemap"
)

const cardSource = `<script tag="my-card">
import { prop } from 'estrela';
const title = prop('Hello');
</script>
<h2>{title}</h2>
<style>h2 { color: red; }</style>
`

// fixture is a temporary project with a config file.
type fixture struct {
	dir    string
	config string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "estrela.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  level: error\n"), 0o600))

	return &fixture{dir: dir, config: cfg}
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()

	path := filepath.Join(f.dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	rootCmd := newRootCmd()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(append([]string{"--config", f.config}, args...))

	err := rootCmd.Execute()

	return buf.String(), err
}

func TestCLI_HelpAndSubcommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args    []string
		wantOut string
		wantErr bool
	}{
		{args: []string{"--help"}, wantOut: "compiles single-file components"},
		{args: []string{"compile", "--help"}, wantOut: "--source-map"},
		{args: []string{"inspect", "--help"}, wantOut: "--format"},
		{args: []string{"diff", "--help"}, wantOut: "--stat"},
		{args: []string{"validate", "--help"}, wantOut: "embedded JSON schema"},
		{args: []string{"serve", "--help"}, wantOut: "/api/transform"},
		{args: []string{"mcp", "--help"}, wantOut: "estrela_compile"},
		{args: []string{"lsp", "--help"}, wantOut: "language server"},
		{args: []string{"version"}, wantOut: "estrela "},
		{args: []string{"unknown"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			t.Parallel()

			rootCmd := newRootCmd()
			buf := new(bytes.Buffer)
			rootCmd.SetOut(buf)
			rootCmd.SetErr(buf)
			rootCmd.SetArgs(tt.args)

			err := rootCmd.Execute()
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.wantOut)
		})
	}
}

func TestCompile_WritesModulesAndMaps(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "src/my-card.estrela", cardSource)
	f.write(t, "src/main.ts", "export {};")

	out, err := f.run(t, "compile", "-o", filepath.Join(f.dir, "dist"), filepath.Join(f.dir, "src"))
	require.NoError(t, err)
	assert.Contains(t, out, "1 compiled")
	assert.Contains(t, out, "0 failed")

	code, err := os.ReadFile(filepath.Join(f.dir, "dist", "my-card.js"))
	require.NoError(t, err)
	assert.Contains(t, string(code), `defineElement("my-card"`)
	assert.Contains(t, string(code), "//# sourceMappingURL=my-card.js.map")

	data, err := os.ReadFile(filepath.Join(f.dir, "dist", "my-card.js.map"))
	require.NoError(t, err)
	require.NoError(t, sourcemap.Validate(data))
}

func TestCompile_InlineMapNextToSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	src := f.write(t, "app.estrela", "<p>{x}</p>")

	_, err := f.run(t, "compile", "--source-map", build.MapInline, src)
	require.NoError(t, err)

	code, err := os.ReadFile(filepath.Join(f.dir, "app.js"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "//# sourceMappingURL=data:application/json")

	_, err = os.Stat(filepath.Join(f.dir, "app.js.map"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCompile_Failures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "src/good-one.estrela", "<p></p>")
	f.write(t, "src/bad-one.estrela", "<div>{a</div>")

	out, err := f.run(t, "compile", filepath.Join(f.dir, "src"))
	require.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, out, "bad-one.estrela")
	assert.Contains(t, out, "1 failed")
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	empty := filepath.Join(f.dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o750))

	_, err := f.run(t, "compile", empty)
	require.ErrorIs(t, err, ErrNoComponents)

	_, err = f.run(t, "compile", "--source-map", "sideways", empty)
	require.ErrorIs(t, err, build.ErrUnknownMapMode)
}

func TestInspect_Formats(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := f.write(t, "card.estrela", cardSource)

	out, err := f.run(t, "inspect", "-f", "json", path)
	require.NoError(t, err)

	var report compiler.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "my-card", report.Tag)
	require.Len(t, report.Directives, 1)
	assert.Equal(t, "title", report.Directives[0].Variable)

	out, err = f.run(t, "inspect", "-f", "yaml", path)
	require.NoError(t, err)

	var fromYAML compiler.Report
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, report.Tag, fromYAML.Tag)

	out, err = f.run(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "my-card")
	assert.Contains(t, out, "Sections")
	assert.Contains(t, out, "Directives")

	_, err = f.run(t, "inspect", "-f", "xml", path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestInspect_CompileErrorHasExcerpt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := f.write(t, "bad-one.estrela", "<div>{a</div>")

	_, err := f.run(t, "inspect", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "> ")
}

func TestDiff(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := f.write(t, "card.estrela", cardSource)

	out, err := f.run(t, "diff", path)
	require.NoError(t, err)
	assert.Contains(t, out, "+++ ")
	assert.Contains(t, out, "+import { defineElement")
	assert.Contains(t, out, "-<script tag=\"my-card\">")

	out, err = f.run(t, "diff", "--stat", path)
	require.NoError(t, err)
	assert.Contains(t, out, "insertions(+)")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	src := f.write(t, "app.estrela", "<p>{x}</p>")

	_, err := f.run(t, "compile", src)
	require.NoError(t, err)

	good := filepath.Join(f.dir, "app.js.map")
	bad := f.write(t, "bad.js.map", `{"version": 2}`)

	out, err := f.run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, good)

	_, err = f.run(t, "validate", good, bad)
	require.ErrorIs(t, err, ErrInvalidMaps)

	out, err = f.run(t, "validate", "--schema")
	require.NoError(t, err)
	assert.Contains(t, out, "mappings")
}

func TestBatchRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	assert.Equal(t, dir, batchRoot([]string{dir}))
	assert.Equal(t, ".", batchRoot([]string{dir, dir}))
	assert.Equal(t, ".", batchRoot([]string{filepath.Join(dir, "missing.estrela")}))
}
