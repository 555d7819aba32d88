package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

// Sentinel errors for the compile command.
var (
	ErrNoComponents = errors.New("no component files found")
	ErrBuildFailed  = errors.New("build failed")
)

type compileFlags struct {
	outDir    string
	sourceMap string
	workers   int
	watch     bool
	quiet     bool
}

func newCompileCmd(opts *rootOptions) *cobra.Command {
	var flags compileFlags

	cmd := &cobra.Command{
		Use:   "compile [paths...]",
		Short: "Compile component files to JavaScript modules",
		Long: `Compile component files to JavaScript modules.

Directories are searched recursively (hidden directories, node_modules and
dist are skipped). Each component is written as a .js module next to its
source, or mirrored under --out-dir, with its source map.

Examples:
  estrela compile src                      # Compile every component under src
  estrela compile -o dist src              # Write modules under dist/
  estrela compile --source-map inline app.estrela
  estrela compile --watch src              # Recompile on change`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.outDir, "out-dir", "o", "", "output directory (default: config output.dir, or next to sources)")
	cmd.Flags().StringVar(&flags.sourceMap, "source-map", "", "source map mode: file, inline or none (default: config output.source_map)")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "parallel compiles (default: config build.workers, or one per CPU)")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "recompile when component files change")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "only print failures and the summary")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *rootOptions, flags compileFlags, args []string) error {
	a, err := setup(cmd, opts, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 0 {
		args = []string{"."}
	}

	batch := build.BatchOptions{
		Root:      batchRoot(args),
		OutDir:    a.cfg.Output.Dir,
		SourceMap: a.cfg.Output.SourceMap,
		Workers:   a.cfg.Build.Workers,
	}

	if cmd.Flags().Changed("out-dir") {
		batch.OutDir = flags.outDir
	}

	if cmd.Flags().Changed("source-map") {
		batch.SourceMap = flags.sourceMap
	}

	if cmd.Flags().Changed("workers") {
		batch.Workers = flags.workers
	}

	if err := checkMapMode(batch.SourceMap); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := &progressPrinter{out: out, quiet: flags.quiet}
	batch.Progress = printer.print

	files, err := build.Collect(args, a.svc.Match)
	if err != nil {
		return err
	}

	if len(files) == 0 && !flags.watch {
		return fmt.Errorf("%w in %v", ErrNoComponents, args)
	}

	summary, err := a.svc.Build(cmd.Context(), files, batch)
	if err != nil {
		return err
	}

	printSummary(out, summary, a.svc.CacheStats().HitRate())

	if flags.watch {
		batch.Ready = func() {
			color.New(color.FgCyan).Fprintf(out, "watching %v for changes (ctrl-c to stop)\n", args)
		}

		return a.svc.Watch(cmd.Context(), args, batch)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d files failed", ErrBuildFailed, summary.Failed, len(summary.Files))
	}

	return nil
}

func checkMapMode(mode string) error {
	switch mode {
	case build.MapFile, build.MapInline, build.MapNone:
		return nil
	default:
		return fmt.Errorf("%w: %q", build.ErrUnknownMapMode, mode)
	}
}

// batchRoot is the directory output paths are mirrored from: the single
// directory argument, or the working directory.
func batchRoot(args []string) string {
	if len(args) == 1 {
		info, err := os.Stat(args[0])
		if err == nil && info.IsDir() {
			return args[0]
		}
	}

	return "."
}

// progressPrinter serializes per-file lines written from build workers.
type progressPrinter struct {
	out   io.Writer
	mu    sync.Mutex
	quiet bool
}

func (p *progressPrinter) print(res build.FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.Err != nil {
		color.New(color.FgRed).Fprintf(p.out, "✗ %s: %v\n", res.Source, res.Err)

		if excerpt := errorExcerpt(res); excerpt != "" {
			fmt.Fprint(p.out, excerpt)
		}

		return
	}

	for _, w := range res.Output.Warnings {
		color.New(color.FgYellow).Fprintf(p.out, "! %s\n", w)
	}

	if p.quiet {
		return
	}

	status := color.New(color.FgGreen).Sprint("✓")
	if res.Output.Cached {
		status = color.New(color.FgCyan).Sprint("=")
	}

	dest := ""
	if len(res.Written) > 0 {
		dest = " -> " + res.Written[0]
	}

	fmt.Fprintf(p.out, "%s %s%s (%s, %s)\n",
		status, res.Source, dest,
		humanize.Bytes(uint64(len(res.Output.Code))), roundDuration(res.Duration))
}

// errorExcerpt renders the source lines around a compile error.
func errorExcerpt(res build.FileResult) string {
	var cErr *compiler.Error
	if !errors.As(res.Err, &cErr) {
		return ""
	}

	source, err := os.ReadFile(filepath.Clean(res.Source))
	if err != nil {
		return ""
	}

	return cErr.Excerpt(string(source))
}

func printSummary(out io.Writer, summary *build.Summary, hitRate float64) {
	line := fmt.Sprintf("%d compiled", summary.Compiled)

	if summary.Cached > 0 {
		line += fmt.Sprintf(" (%d cached, %.0f%% hit rate)", summary.Cached, hitRate*100)
	}

	line += fmt.Sprintf(", %d failed: %s -> %s in %s",
		summary.Failed,
		humanize.Bytes(uint64(summary.SourceBytes)),
		humanize.Bytes(uint64(summary.OutputBytes)),
		roundDuration(summary.Duration))

	c := color.New(color.FgGreen)
	if summary.Failed > 0 {
		c = color.New(color.FgRed)
	}

	c.Fprintln(out, line)
}

func roundDuration(d time.Duration) time.Duration {
	switch {
	case d > time.Second:
		return d.Round(time.Millisecond)
	case d > time.Millisecond:
		return d.Round(10 * time.Microsecond)
	default:
		return d.Round(time.Microsecond)
	}
}
