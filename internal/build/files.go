package build

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Path safety errors.
var (
	ErrEmptyPath       = errors.New("path is empty")
	ErrPathContainsNUL = errors.New("path contains NUL byte")
	ErrDirectoryPath   = errors.New("path points to a directory")
	ErrNotRegular      = errors.New("path is not a regular file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrBinaryFile      = errors.New("file is binary")
)

// skippedDirs are never descended into when collecting components.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
}

// ResolvePath cleans path, makes it absolute and checks that it names a
// regular file.
func ResolvePath(path string) (string, os.FileInfo, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil, ErrEmptyPath
	}

	if strings.ContainsRune(path, '\x00') {
		return "", nil, fmt.Errorf("%w: %q", ErrPathContainsNUL, path)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", nil, fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat %s: %w", absPath, err)
	}

	if info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s", ErrDirectoryPath, absPath)
	}

	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: %s", ErrNotRegular, absPath)
	}

	return absPath, info, nil
}

// ReadSource reads a component file after the path checks. maxSize <= 0
// disables the size limit.
func ReadSource(path string, maxSize int64) (source, resolved string, err error) {
	resolved, info, err := ResolvePath(path)
	if err != nil {
		return "", "", err
	}

	if maxSize > 0 && info.Size() > maxSize {
		return "", "", fmt.Errorf("%w: %s is %s, limit %s", ErrFileTooLarge, resolved,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(maxSize)))
	}

	//nolint:gosec // resolved is cleaned, absolute and type checked by ResolvePath.
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", resolved, err)
	}

	if isBinary(data) {
		return "", "", fmt.Errorf("%w: %s", ErrBinaryFile, resolved)
	}

	return string(data), resolved, nil
}

// binarySniffLength is how many leading bytes are scanned for a NUL byte.
const binarySniffLength = 8000

func isBinary(data []byte) bool {
	sniff := data[:min(len(data), binarySniffLength)]

	return bytes.IndexByte(sniff, 0) >= 0
}

// Collect expands roots into the sorted list of component files they
// contain. Files named directly are kept whatever their extension; hidden
// directories, node_modules and dist are skipped while walking.
func Collect(roots []string, match func(string) bool) ([]string, error) {
	seen := make(map[string]bool)

	var files []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}

		if !info.IsDir() {
			add(filepath.Clean(root))

			continue
		}

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if path != root && (isHiddenDir(d.Name()) || skippedDirs[d.Name()]) {
					return filepath.SkipDir
				}

				return nil
			}

			if d.Type().IsRegular() && match(path) {
				add(path)
			}

			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walk %s: %w", root, walkErr)
		}
	}

	sort.Strings(files)

	return files, nil
}

func isHiddenDir(name string) bool {
	return len(name) > 1 && name[0] == '.'
}
