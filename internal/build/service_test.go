package build_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

const helloSource = `<h1>Hello {name}</h1>`

func newService(t *testing.T, cacheSize int64) *build.Service {
	t.Helper()

	svc, err := build.NewService(build.Options{
		Compiler:    compiler.DefaultOptions(),
		CacheSize:   cacheSize,
		MaxFileSize: 1 << 20,
	}, nil, nil)
	require.NoError(t, err)

	return svc
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewService_RejectsBadOptions(t *testing.T) {
	t.Parallel()

	opts := compiler.DefaultOptions()
	opts.Runtime = ""

	_, err := build.NewService(build.Options{Compiler: opts}, nil, nil)
	require.Error(t, err)
}

func TestTransform_PassesThroughOtherFiles(t *testing.T) {
	t.Parallel()

	src := "export const x = 1;"

	out, err := newService(t, 0).Transform(context.Background(), "src/main.ts", src)
	require.NoError(t, err)

	assert.False(t, out.Handled)
	assert.Equal(t, src, out.Code)
	assert.Nil(t, out.Map)
}

func TestTransform_CompilesComponent(t *testing.T) {
	t.Parallel()

	out, err := newService(t, 0).Transform(context.Background(), "src/app.estrela", helloSource)
	require.NoError(t, err)

	assert.True(t, out.Handled)
	assert.False(t, out.Cached)
	assert.Equal(t, "app", out.Tag)
	assert.Equal(t, "template", out.Shape)
	assert.Contains(t, out.Code, "html`<h1>Hello ${name}</h1>`")

	var m map[string]any

	require.NoError(t, json.Unmarshal(out.Map, &m))
	assert.InDelta(t, 3, m["version"], 0)
	assert.Equal(t, "src/app.estrela.map", m["file"])
}

func TestTransform_CachesByContent(t *testing.T) {
	t.Parallel()

	svc := newService(t, 1<<20)
	ctx := context.Background()

	first, err := svc.Transform(ctx, "app.estrela", helloSource)
	require.NoError(t, err)

	second, err := svc.Transform(ctx, "app.estrela", helloSource)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Map, second.Map)
	assert.Equal(t, first.Tag, second.Tag)
	assert.Equal(t, first.Shape, second.Shape)

	third, err := svc.Transform(ctx, "app.estrela", helloSource+"\n")
	require.NoError(t, err)
	assert.False(t, third.Cached)

	stats := svc.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 2, stats.Entries)
}

func TestTransform_CachedWarningsSurvive(t *testing.T) {
	t.Parallel()

	svc := newService(t, 1<<20)
	src := "<script>\nimport { prop } from 'estrela';\n</script>\n<p>hi</p>"

	first, err := svc.Transform(context.Background(), "x-unused.estrela", src)
	require.NoError(t, err)
	require.NotEmpty(t, first.Warnings)

	second, err := svc.Transform(context.Background(), "x-unused.estrela", src)
	require.NoError(t, err)
	require.True(t, second.Cached)
	assert.Equal(t, first.Warnings, second.Warnings)
}

func TestTransform_CompileError(t *testing.T) {
	t.Parallel()

	_, err := newService(t, 0).Transform(context.Background(), "x-bad.estrela", "<div>{a</div>")
	require.Error(t, err)
	assert.True(t, build.IsCompileError(err))
}

func TestTransform_Concurrent(t *testing.T) {
	t.Parallel()

	svc := newService(t, 1<<20)

	var wg sync.WaitGroup

	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			src := strings.Repeat("<p>{x}</p>", i%4+1)
			out, err := svc.Transform(context.Background(), "x-par.estrela", src)
			assert.NoError(t, err)
			assert.True(t, out.Handled)
		}()
	}

	wg.Wait()
}

func TestCompileFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "my-app.estrela")
	writeFile(t, path, helloSource)

	out, err := newService(t, 0).CompileFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, out.Path)
	assert.Equal(t, "my-app", out.Tag)
	assert.Equal(t, len(helloSource), out.SourceSize)
}

func TestCompileFile_PathChecks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	big := filepath.Join(dir, "big.estrela")
	writeFile(t, big, strings.Repeat("<p>x</p>", 200_000))

	svc := newService(t, 0)
	ctx := context.Background()

	_, err := svc.CompileFile(ctx, "")
	require.ErrorIs(t, err, build.ErrEmptyPath)

	_, err = svc.CompileFile(ctx, dir)
	require.ErrorIs(t, err, build.ErrDirectoryPath)

	_, err = svc.CompileFile(ctx, "bad\x00path.estrela")
	require.ErrorIs(t, err, build.ErrPathContainsNUL)

	_, err = svc.CompileFile(ctx, big)
	require.ErrorIs(t, err, build.ErrFileTooLarge)

	_, err = svc.CompileFile(ctx, filepath.Join(dir, "missing.estrela"))
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, build.IsCompileError(err))
}
