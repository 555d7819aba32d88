package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultDebounce = 75 * time.Millisecond

// Watch rebuilds component files under roots whenever they change, until
// ctx is cancelled. Directories created later are watched too. Results are
// reported through opts.Progress.
func (s *Service) Watch(ctx context.Context, roots []string, opts BatchOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	explicit := make(map[string]bool)

	var trees []string

	for _, root := range roots {
		info, statErr := os.Stat(root)
		if statErr != nil {
			return fmt.Errorf("stat %s: %w", root, statErr)
		}

		if !info.IsDir() {
			explicit[filepath.Clean(root)] = true

			if addErr := watcher.Add(filepath.Dir(root)); addErr != nil {
				return fmt.Errorf("watch %s: %w", root, addErr)
			}

			continue
		}

		if addErr := addTree(watcher, root); addErr != nil {
			return addErr
		}

		trees = append(trees, filepath.Clean(root))
	}

	if opts.Ready != nil {
		opts.Ready()
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()

	s.logger.InfoContext(ctx, "watching for changes", "roots", roots)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if s.queueEvent(watcher, ev, trees, explicit, pending) {
				timer.Reset(debounce)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.WarnContext(ctx, "watch error", "error", werr)

		case <-timer.C:
			s.flush(ctx, pending, opts)
			clear(pending)
		}
	}
}

// queueEvent records ev and reports whether it produced work.
func (s *Service) queueEvent(
	watcher *fsnotify.Watcher, ev fsnotify.Event, trees []string, explicit, pending map[string]bool,
) bool {
	name := filepath.Clean(ev.Name)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := addTree(watcher, name); err != nil {
				s.logger.Warn("watch new directory", "path", name, "error", err)
			}

			return false
		}
	}

	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}

	if !explicit[name] && !(s.Match(name) && underAny(name, trees)) {
		return false
	}

	pending[name] = true

	return true
}

func (s *Service) flush(ctx context.Context, pending map[string]bool, opts BatchOptions) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}

	sort.Strings(paths)

	for _, path := range paths {
		evCtx, sp := otel.Tracer(tracerName).Start(ctx, "estrela.build.watch.event",
			trace.WithAttributes(attribute.String("estrela.path", path)))

		res := s.buildOne(evCtx, path, opts)
		if errors.Is(res.Err, fs.ErrNotExist) {
			sp.End()

			continue
		}

		if opts.Progress != nil {
			opts.Progress(res)
		}

		sp.End()
	}
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && (isHiddenDir(d.Name()) || skippedDirs[d.Name()]) {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	return nil
}
