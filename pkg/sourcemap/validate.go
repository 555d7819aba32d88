package sourcemap

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidMap is returned when a payload does not describe a usable map.
var ErrInvalidMap = errors.New("sourcemap: invalid map")

//go:embed schema.json
var schemaJSON []byte

// Schema returns the embedded JSON schema for revision 3 maps.
func Schema() []byte {
	return schemaJSON
}

// Validate checks data against the embedded schema, then decodes the mappings
// and verifies every segment points at a declared source.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMap, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
		}

		return fmt.Errorf("%w: %s", ErrInvalidMap, strings.Join(msgs, "; "))
	}

	var m Map

	if err = json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMap, err)
	}

	lines, err := Decode(m.Mappings)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMap, err)
	}

	for li, segs := range lines {
		for _, seg := range segs {
			if seg.Mapped && (seg.Source < 0 || seg.Source >= len(m.Sources)) {
				return fmt.Errorf("%w: line %d column %d references source %d",
					ErrInvalidMap, li, seg.GeneratedColumn, seg.Source)
			}
		}
	}

	return nil
}
