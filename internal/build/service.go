// Package build connects the compiler to hosts: it decides which files are
// components, caches compile outputs, reads sources from disk, writes
// compiled modules, and drives batch and watch builds.
package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/estrelajs/vite-plugin-estrela/internal/cache"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

const opCompile = "compile"

// ErrNotComponent is returned by batch builds for files outside the
// component extension.
var ErrNotComponent = errors.New("not a component file")

// Options configures a Service.
type Options struct {
	Compiler compiler.Options
	// CacheSize is the compile cache budget in bytes. Zero disables caching.
	CacheSize int64
	// MaxFileSize limits files read by CompileFile. Zero means no limit.
	MaxFileSize int64
}

// Output is the result of transforming one file.
type Output struct {
	Path string
	Code string
	// SourceSize is the length of the input in bytes.
	SourceSize int
	// Map is the serialized source map; nil when Handled is false.
	Map      []byte
	Tag      string
	Shape    string
	Warnings []compiler.Warning
	// Handled is false for files that are not components.
	Handled bool
	Cached  bool
}

// outputMeta is the part of an Output kept next to cached code.
type outputMeta struct {
	Tag      string             `json:"tag"`
	Shape    string             `json:"shape"`
	Warnings []compiler.Warning `json:"warnings,omitempty"`
}

// Service compiles component files for hosts. It is safe for concurrent use.
type Service struct {
	compiler    *compiler.Compiler
	cache       *cache.LRU
	red         *observability.REDMetrics
	metrics     *observability.CompileMetrics
	logger      *slog.Logger
	fingerprint string
	maxFileSize int64
}

// NewService creates a Service. A nil meter records nothing; a nil logger
// discards.
func NewService(opts Options, logger *slog.Logger, meter metric.Meter) (*Service, error) {
	comp, err := compiler.New(opts.Compiler)
	if err != nil {
		return nil, fmt.Errorf("create compiler: %w", err)
	}

	if meter == nil {
		meter = noopmetric.NewMeterProvider().Meter("estrela")
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	red, err := observability.NewREDMetrics(meter)
	if err != nil {
		return nil, err
	}

	cm, err := observability.NewCompileMetrics(meter)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		compiler:    comp,
		red:         red,
		metrics:     cm,
		logger:      logger,
		fingerprint: comp.Options().Fingerprint(),
		maxFileSize: opts.MaxFileSize,
	}

	if opts.CacheSize > 0 {
		svc.cache = cache.NewLRU(opts.CacheSize)
	}

	return svc, nil
}

// Compiler returns the underlying compiler.
func (s *Service) Compiler() *compiler.Compiler {
	return s.compiler
}

// Match reports whether path is a component file.
func (s *Service) Match(path string) bool {
	return s.compiler.Match(path)
}

// CacheStats returns compile cache counters. The zero value is returned
// when caching is disabled.
func (s *Service) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}

	return s.cache.Stats()
}

// Transform compiles source when path is a component file. Other files are
// returned unchanged with Handled set to false.
func (s *Service) Transform(ctx context.Context, path, source string) (*Output, error) {
	if !s.compiler.Match(path) {
		return &Output{Path: path, Code: source, SourceSize: len(source)}, nil
	}

	start := time.Now()
	done := s.red.TrackInflight(ctx, opCompile)

	out, err := s.transform(ctx, path, source)

	done()

	if err != nil {
		s.red.RecordRequest(ctx, opCompile, observability.StatusError, time.Since(start))
		s.logger.DebugContext(ctx, "compile failed", "path", path, "error", err)

		return nil, err
	}

	s.red.RecordRequest(ctx, opCompile, observability.StatusOK, time.Since(start))
	s.metrics.RecordFile(ctx, observability.CompileStats{
		Shape:       out.Shape,
		SourceBytes: len(source),
		OutputBytes: len(out.Code),
		Warnings:    len(out.Warnings),
		Cached:      out.Cached,
	})

	for _, w := range out.Warnings {
		s.logger.WarnContext(ctx, w.Message, "path", w.Path, "line", w.Line, "column", w.Column)
	}

	s.logger.DebugContext(ctx, "compiled", "path", path, "tag", out.Tag, "cached", out.Cached,
		"duration", time.Since(start))

	return out, nil
}

func (s *Service) transform(ctx context.Context, path, source string) (*Output, error) {
	var key cache.Key

	if s.cache != nil {
		key = cache.NewKey(s.fingerprint, path, source)

		if out, ok := s.lookup(ctx, key, path); ok {
			out.SourceSize = len(source)

			return out, nil
		}
	}

	res, err := s.compiler.Compile(ctx, source, path)
	if err != nil {
		return nil, err
	}

	mapJSON, err := res.Map.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode source map for %s: %w", path, err)
	}

	out := &Output{
		Path:       path,
		Code:       res.Code,
		SourceSize: len(source),
		Map:        mapJSON,
		Tag:        res.Metadata.Tag,
		Shape:      res.Shape.String(),
		Warnings:   res.Warnings,
		Handled:    true,
	}

	if s.cache != nil {
		s.store(key, out)
	}

	return out, nil
}

func (s *Service) lookup(ctx context.Context, key cache.Key, path string) (*Output, bool) {
	entry, ok, err := s.cache.Get(key)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping corrupt cache entry", "path", path, "error", err)

		return nil, false
	}

	if !ok {
		return nil, false
	}

	var meta outputMeta

	if err := json.Unmarshal(entry.Meta, &meta); err != nil {
		s.cache.Remove(key)

		return nil, false
	}

	return &Output{
		Path:     path,
		Code:     entry.Code,
		Map:      entry.Map,
		Tag:      meta.Tag,
		Shape:    meta.Shape,
		Warnings: meta.Warnings,
		Handled:  true,
		Cached:   true,
	}, true
}

func (s *Service) store(key cache.Key, out *Output) {
	meta, err := json.Marshal(outputMeta{Tag: out.Tag, Shape: out.Shape, Warnings: out.Warnings})
	if err != nil {
		return
	}

	s.cache.Put(key, cache.Entry{Code: out.Code, Map: out.Map, Meta: meta})
}

// CompileFile reads path with the file safety checks and transforms it.
// The cleaned path as given, not the resolved one, names the map source.
func (s *Service) CompileFile(ctx context.Context, path string) (*Output, error) {
	source, _, err := ReadSource(path, s.maxFileSize)
	if err != nil {
		return nil, err
	}

	return s.Transform(ctx, filepath.Clean(path), source)
}

// IsCompileError reports whether err came from compiling a component, as
// opposed to reading or writing files.
func IsCompileError(err error) bool {
	var compileErr *compiler.Error

	return errors.As(err, &compileErr)
}
