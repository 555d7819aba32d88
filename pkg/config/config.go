// Package config provides configuration loading and validation for the
// estrela compiler, its CLI and its servers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/estrelajs/vite-plugin-estrela/pkg/compiler"
)

// Sentinel validation errors.
var (
	ErrInvalidPort      = errors.New("invalid server port")
	ErrInvalidWorkers   = errors.New("build workers must not be negative")
	ErrInvalidSourceMap = errors.New("invalid source map mode")
	ErrInvalidCacheSize = errors.New("invalid cache size")
	ErrInvalidLogFormat = errors.New("invalid log format")
	ErrInvalidSampling  = errors.New("trace sample ratio must be within [0, 1]")
)

// Source map output modes.
const (
	SourceMapFile   = "file"
	SourceMapInline = "inline"
	SourceMapNone   = "none"
)

// Default configuration values.
const (
	defaultPort      = 5174
	defaultHost      = "127.0.0.1"
	defaultCacheSize = "64MB"
	maxPort          = 65535
)

// Config holds all configuration for estrela.
type Config struct {
	Compiler  CompilerConfig  `mapstructure:"compiler"`
	Output    OutputConfig    `mapstructure:"output"`
	Build     BuildConfig     `mapstructure:"build"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// CompilerConfig mirrors compiler.Options.
type CompilerConfig struct {
	Runtime        string `mapstructure:"runtime"`
	Extension      string `mapstructure:"extension"`
	Sigil          string `mapstructure:"sigil"`
	Hires          bool   `mapstructure:"hires"`
	IncludeContent bool   `mapstructure:"include_content"`
}

// OutputConfig controls where compiled modules are written.
type OutputConfig struct {
	// Dir is the output directory; empty writes next to each source file.
	Dir       string `mapstructure:"dir"`
	SourceMap string `mapstructure:"source_map"`
}

// BuildConfig controls batch compilation.
type BuildConfig struct {
	// Workers is the number of parallel compiles; zero means one per CPU.
	Workers int `mapstructure:"workers"`
	// MaxFileSize is the largest component file accepted.
	MaxFileSize string `mapstructure:"max_file_size"`
}

// CacheConfig holds compile cache configuration.
type CacheConfig struct {
	MaxSize string `mapstructure:"max_size"`
	Enabled bool   `mapstructure:"enabled"`
}

// ServerConfig holds transform server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Port         int           `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CompilerOptions converts the compiler section to compiler.Options.
func (c *Config) CompilerOptions() compiler.Options {
	return compiler.Options{
		Runtime:        c.Compiler.Runtime,
		Extension:      c.Compiler.Extension,
		Sigil:          c.Compiler.Sigil,
		Hires:          c.Compiler.Hires,
		IncludeContent: c.Compiler.IncludeContent,
	}
}

// CacheBytes returns the cache budget in bytes.
func (c *Config) CacheBytes() (int64, error) {
	return parseSize(c.Cache.MaxSize)
}

// MaxFileBytes returns the largest accepted component file in bytes.
func (c *Config) MaxFileBytes() (int64, error) {
	return parseSize(c.Build.MaxFileSize)
}

func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidCacheSize, s, err)
	}

	if n > uint64(1<<62) {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidCacheSize, s)
	}

	return int64(n), nil
}

// LoadConfig loads configuration from file and environment variables.
// Without an explicit path estrela.yaml is looked up in the working
// directory and in $HOME/.estrela.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("estrela")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME/.estrela")
	}

	viperCfg.SetEnvPrefix("ESTRELA")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	defaults := compiler.DefaultOptions()

	viperCfg.SetDefault("compiler.runtime", defaults.Runtime)
	viperCfg.SetDefault("compiler.extension", defaults.Extension)
	viperCfg.SetDefault("compiler.sigil", defaults.Sigil)
	viperCfg.SetDefault("compiler.hires", defaults.Hires)
	viperCfg.SetDefault("compiler.include_content", defaults.IncludeContent)

	viperCfg.SetDefault("output.dir", "")
	viperCfg.SetDefault("output.source_map", SourceMapFile)

	viperCfg.SetDefault("build.workers", 0)
	viperCfg.SetDefault("build.max_file_size", "2MB")

	viperCfg.SetDefault("cache.enabled", true)
	viperCfg.SetDefault("cache.max_size", defaultCacheSize)

	viperCfg.SetDefault("server.host", defaultHost)
	viperCfg.SetDefault("server.port", defaultPort)
	viperCfg.SetDefault("server.read_timeout", "10s")
	viperCfg.SetDefault("server.write_timeout", "30s")
	viperCfg.SetDefault("server.idle_timeout", "60s")

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 1.0)
}

func validateConfig(config *Config) error {
	if err := config.CompilerOptions().Validate(); err != nil {
		return err
	}

	switch config.Output.SourceMap {
	case SourceMapFile, SourceMapInline, SourceMapNone:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourceMap, config.Output.SourceMap)
	}

	if config.Build.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Build.Workers)
	}

	if _, err := config.CacheBytes(); err != nil {
		return err
	}

	if _, err := config.MaxFileBytes(); err != nil {
		return err
	}

	if config.Server.Port <= 0 || config.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampling, config.Telemetry.SampleRatio)
	}

	return nil
}
