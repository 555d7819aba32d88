package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/estrelajs/vite-plugin-estrela/pkg/metadata"
)

// DefaultRuntime is the module generated code imports from.
const DefaultRuntime = "estrela"

// DefaultSigil marks embedded expressions for reactive evaluation.
const DefaultSigil = "$"

var (
	errEmptyRuntime = errors.New("runtime module must not be empty")
	errBadSigil     = errors.New("expression sigil must be a single non-space character")
)

// Options configures a Compiler.
type Options struct {
	// Runtime is the module specifier defineElement, html and css come from.
	Runtime string
	// Extension is the component file extension.
	Extension string
	// Sigil is inserted before every embedded expression.
	Sigil string
	// Hires maps every generated character instead of every copied run.
	Hires bool
	// IncludeContent embeds the component source in the map.
	IncludeContent bool
}

// DefaultOptions returns the options the compiler uses when none are given.
func DefaultOptions() Options {
	return Options{
		Runtime:        DefaultRuntime,
		Extension:      metadata.DefaultExtension,
		Sigil:          DefaultSigil,
		Hires:          true,
		IncludeContent: true,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Runtime) == "" {
		return errEmptyRuntime
	}

	if len([]rune(o.Sigil)) != 1 || strings.TrimSpace(o.Sigil) == "" {
		return fmt.Errorf("%w: %q", errBadSigil, o.Sigil)
	}

	return nil
}

// Fingerprint returns a stable string identifying options that change the output.
func (o Options) Fingerprint() string {
	return fmt.Sprintf("runtime=%s;ext=%s;sigil=%s;hires=%t;content=%t",
		o.Runtime, o.Extension, o.Sigil, o.Hires, o.IncludeContent)
}
