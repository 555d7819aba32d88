package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/estrelajs/vite-plugin-estrela/internal/build"
	"github.com/estrelajs/vite-plugin-estrela/internal/observability"
	"github.com/estrelajs/vite-plugin-estrela/pkg/config"
	"github.com/estrelajs/vite-plugin-estrela/pkg/version"
)

const logFormatJSON = "json"

// app is the wiring shared by every command that compiles.
type app struct {
	cfg         *config.Config
	providers   observability.Providers
	svc         *build.Service
	maxFileSize int64
}

// setup loads configuration, initializes observability for mode and
// creates the build service. Callers must call close.
func setup(cmd *cobra.Command, opts *rootOptions, mode observability.AppMode) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(observabilityConfig(cmd, cfg, opts, mode))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	a := &app{cfg: cfg, providers: providers}

	err = a.initService()
	if err != nil {
		a.close()

		return nil, err
	}

	providers.Logger.Debug("estrela starting",
		"mode", string(mode),
		"version", version.Version,
		"runtime", cfg.Compiler.Runtime,
		"extension", cfg.Compiler.Extension,
	)

	return a, nil
}

func (a *app) initService() error {
	var (
		cacheSize int64
		err       error
	)

	if a.cfg.Cache.Enabled {
		cacheSize, err = a.cfg.CacheBytes()
		if err != nil {
			return err
		}
	}

	a.maxFileSize, err = a.cfg.MaxFileBytes()
	if err != nil {
		return err
	}

	a.svc, err = build.NewService(build.Options{
		Compiler:    a.cfg.CompilerOptions(),
		CacheSize:   cacheSize,
		MaxFileSize: a.maxFileSize,
	}, a.providers.Logger, a.providers.Meter)

	return err
}

func observabilityConfig(
	cmd *cobra.Command, cfg *config.Config, opts *rootOptions, mode observability.AppMode,
) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.Format == logFormatJSON
	obsCfg.LogWriter = cmd.ErrOrStderr()
	obsCfg.Prometheus = mode == observability.ModeServe

	if obsCfg.OTLPEndpoint == "" {
		obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))

	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		obsCfg.OTLPInsecure = true
	}

	// Stdio protocols own stdout; their logs are machine-read on stderr.
	if mode == observability.ModeMCP || mode == observability.ModeLSP {
		obsCfg.LogJSON = true
	}

	if opts.debug {
		obsCfg.LogLevel = observability.ParseLevel("debug")
		obsCfg.DebugTrace = true
	}

	return obsCfg
}

func (a *app) close() {
	err := a.providers.Shutdown(context.Background())
	if err != nil {
		a.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}
