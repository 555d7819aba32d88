package build

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "estrela.build"

// BatchOptions configures Build.
type BatchOptions struct {
	// Root is the directory output paths are made relative to.
	Root string
	// OutDir is the output directory; empty writes next to each source.
	OutDir string
	// SourceMap is one of MapFile, MapInline or MapNone.
	SourceMap string
	// Workers bounds concurrent compiles; zero means one per CPU.
	Workers int
	// Progress, when set, is called after each file from worker goroutines.
	Progress func(FileResult)
	// Debounce is how long Watch waits for a burst of events to settle.
	Debounce time.Duration
	// Ready, when set, is called by Watch once its watches are installed.
	Ready func()
}

// FileResult reports one file of a batch build.
type FileResult struct {
	Source   string
	Written  []string
	Output   *Output
	Err      error
	Duration time.Duration
}

// Summary aggregates a batch build.
type Summary struct {
	Files       []FileResult
	Compiled    int
	Cached      int
	Failed      int
	SourceBytes int64
	OutputBytes int64
	Duration    time.Duration
}

// Build compiles files and writes their outputs. A failing file does not
// stop the others; failures are reported in the Summary. Only context
// cancellation aborts the batch.
func (s *Service) Build(ctx context.Context, files []string, opts BatchOptions) (*Summary, error) {
	start := time.Now()

	ctx, sp := otel.Tracer(tracerName).Start(ctx, "estrela.build.run",
		trace.WithAttributes(attribute.Int("build.files", len(files))))
	defer sp.End()

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]FileResult, len(files))

	var sourceBytes, outputBytes atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, file := range files {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := s.buildOne(gctx, file, opts)
			results[i] = res

			if res.Output != nil {
				sourceBytes.Add(int64(res.Output.SourceSize))
				outputBytes.Add(int64(len(res.Output.Code)))
			}

			if opts.Progress != nil {
				opts.Progress(res)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build cancelled: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build cancelled: %w", err)
	}

	sum := &Summary{
		Files:       results,
		SourceBytes: sourceBytes.Load(),
		OutputBytes: outputBytes.Load(),
		Duration:    time.Since(start),
	}

	for _, r := range results {
		switch {
		case r.Err != nil:
			sum.Failed++
		case r.Output.Cached:
			sum.Cached++
			sum.Compiled++
		default:
			sum.Compiled++
		}
	}

	sp.SetAttributes(
		attribute.Int("build.compiled", sum.Compiled),
		attribute.Int("build.failed", sum.Failed),
	)

	return sum, nil
}

func (s *Service) buildOne(ctx context.Context, file string, opts BatchOptions) FileResult {
	start := time.Now()
	res := FileResult{Source: file}

	out, err := s.CompileFile(ctx, file)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)

		return res
	}

	if !out.Handled {
		res.Err = fmt.Errorf("%w: %s", ErrNotComponent, file)
		res.Duration = time.Since(start)

		return res
	}

	res.Output = out

	dest, err := OutputPath(out.Path, opts.Root, opts.OutDir, s.compiler.Options().Extension)
	if err == nil {
		res.Written, err = WriteOutputs(out, dest, opts.SourceMap)
	}

	res.Err = err
	res.Duration = time.Since(start)

	return res
}
