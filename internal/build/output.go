package build

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/estrelajs/vite-plugin-estrela/pkg/sourcemap"
)

// Source map output modes.
const (
	MapFile   = "file"
	MapInline = "inline"
	MapNone   = "none"
)

const sourceMappingPrefix = "//# sourceMappingURL="

// ErrUnknownMapMode is returned for a source map mode other than file,
// inline or none.
var ErrUnknownMapMode = errors.New("unknown source map mode")

// OutputPath returns where the module compiled from src is written. The
// component extension is replaced by .js. With an empty outDir the module
// sits next to its source; otherwise src's path relative to root is
// recreated under outDir.
func OutputPath(src, root, outDir, ext string) (string, error) {
	base := strings.TrimSuffix(src, ext) + ".js"

	if outDir == "" {
		return base, nil
	}

	rel, err := filepath.Rel(root, base)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(base)
	}

	return filepath.Join(outDir, rel), nil
}

// WriteOutputs writes out.Code to dest and its source map according to
// mode. It returns the paths written.
func WriteOutputs(out *Output, dest, mode string) ([]string, error) {
	code := out.Code
	written := []string{dest}

	var mapPath string

	switch mode {
	case MapNone:
	case MapInline:
		code = withTrailer(code, sourceMappingPrefix+sourcemap.DataURL(out.Map))
	case MapFile:
		mapPath = dest + ".map"
		code = withTrailer(code, sourceMappingPrefix+filepath.Base(mapPath))
		written = append(written, mapPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMapMode, mode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if err := os.WriteFile(dest, []byte(code), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", dest, err)
	}

	if mapPath != "" {
		if err := os.WriteFile(mapPath, out.Map, 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", mapPath, err)
		}
	}

	return written, nil
}

func withTrailer(code, trailer string) string {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}

	return code + trailer + "\n"
}
