// Package metadata derives a component's custom element tag and filename
// from its path.
package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultExtension is the component file extension.
const DefaultExtension = ".estrela"

// Sentinel errors for metadata resolution.
var (
	ErrNoTag          = errors.New("cannot derive a tag name from the file path")
	ErrInvalidTag     = errors.New("invalid tag name")
	ErrInvalidPattern = errors.New("invalid component extension")
)

var tagPattern = regexp.MustCompile(`^[A-Za-z][\w.-]*$`)

// Metadata identifies a component.
type Metadata struct {
	// Tag is the custom element name passed to defineElement.
	Tag string
	// Filename is the base name of the component file.
	Filename string
}

// Resolver matches component paths for one extension.
type Resolver struct {
	extension string
	pattern   *regexp.Regexp
}

// NewResolver returns a resolver for files ending in extension.
func NewResolver(extension string) (*Resolver, error) {
	if extension == "" {
		extension = DefaultExtension
	}

	if !strings.HasPrefix(extension, ".") || len(extension) < 2 || strings.ContainsAny(extension, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, extension)
	}

	return &Resolver{
		extension: extension,
		pattern:   regexp.MustCompile(`([\w-]+)` + regexp.QuoteMeta(extension) + `$`),
	}, nil
}

// Extension returns the extension the resolver matches.
func (r *Resolver) Extension() string {
	return r.extension
}

// Match reports whether path names a component file.
func (r *Resolver) Match(path string) bool {
	return r.pattern.MatchString(path)
}

// Resolve returns the metadata for path. A non-empty override, taken from a
// tag attribute in the file, replaces the tag derived from the name.
func (r *Resolver) Resolve(path, override string) (Metadata, error) {
	var md Metadata

	if m := r.pattern.FindStringSubmatch(path); m != nil {
		md.Filename = m[0]
		md.Tag = m[1]
	}

	if override != "" {
		md.Tag = override
	}

	if md.Tag == "" {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNoTag, path)
	}

	if !tagPattern.MatchString(md.Tag) {
		return Metadata{}, fmt.Errorf("%w: %q", ErrInvalidTag, md.Tag)
	}

	return md, nil
}
