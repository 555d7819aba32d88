package build_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
)

func TestCollect(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.estrela"), helloSource)
	writeFile(t, filepath.Join(dir, "ui", "b.estrela"), helloSource)
	writeFile(t, filepath.Join(dir, "ui", "b.ts"), "")
	writeFile(t, filepath.Join(dir, ".cache", "c.estrela"), helloSource)
	writeFile(t, filepath.Join(dir, "node_modules", "lib", "d.estrela"), helloSource)

	svc := newService(t, 0)

	files, err := build.Collect([]string{dir, filepath.Join(dir, "a.estrela")}, svc.Match)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.estrela"),
		filepath.Join(dir, "ui", "b.estrela"),
	}, files)

	_, err = build.Collect([]string{filepath.Join(dir, "missing")}, svc.Match)
	require.Error(t, err)
}

func TestBuild_WritesOutputsAndReportsFailures(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	out := t.TempDir()

	good := filepath.Join(src, "my-app.estrela")
	bad := filepath.Join(src, "ui", "x-bad.estrela")
	other := filepath.Join(src, "readme.md")

	writeFile(t, good, helloSource)
	writeFile(t, bad, "<div>{a</div>")
	writeFile(t, other, "# hi")

	var (
		mu       sync.Mutex
		reported []string
	)

	sum, err := newService(t, 0).Build(context.Background(), []string{good, bad, other}, build.BatchOptions{
		Root:      src,
		OutDir:    out,
		SourceMap: build.MapFile,
		Workers:   2,
		Progress: func(r build.FileResult) {
			mu.Lock()
			defer mu.Unlock()

			reported = append(reported, r.Source)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Compiled)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, int64(len(helloSource)), sum.SourceBytes)
	assert.Positive(t, sum.OutputBytes)
	assert.ElementsMatch(t, []string{good, bad, other}, reported)

	require.Len(t, sum.Files, 3)
	assert.NoError(t, sum.Files[0].Err)
	assert.True(t, build.IsCompileError(sum.Files[1].Err))
	assert.ErrorIs(t, sum.Files[2].Err, build.ErrNotComponent)

	assert.FileExists(t, filepath.Join(out, "my-app.js"))
	assert.FileExists(t, filepath.Join(out, "my-app.js.map"))
	assert.NoFileExists(t, filepath.Join(out, "ui", "x-bad.js"))
}

func TestBuild_Cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "app.estrela")
	writeFile(t, file, helloSource)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(t, 0).Build(ctx, []string{file}, build.BatchOptions{SourceMap: build.MapNone})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatch_RebuildsChangedComponent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "app.estrela")
	writeFile(t, file, helloSource)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	results := make(chan build.FileResult, 8)

	done := make(chan error, 1)
	svc := newService(t, 0)

	go func() {
		done <- svc.Watch(ctx, []string{dir}, build.BatchOptions{
			Root:      dir,
			SourceMap: build.MapNone,
			Debounce:  10 * time.Millisecond,
			Ready:     func() { close(ready) },
			Progress:  func(r build.FileResult) { results <- r },
		})
	}()

	<-ready
	require.NoError(t, os.WriteFile(file, []byte("<h2>{title}</h2>"), 0o600))

	select {
	case r := <-results:
		require.NoError(t, r.Err)
		assert.Contains(t, r.Output.Code, "<h2>${title}</h2>")
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not rebuild the changed component")
	}

	code, err := os.ReadFile(filepath.Join(dir, "app.js"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "<h2>${title}</h2>")

	cancel()
	require.NoError(t, <-done)
}
