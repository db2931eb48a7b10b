package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResultSink persists step results named by a step's save_to.
type ResultSink interface {
	// Save writes record to path and returns where it was written.
	Save(ctx context.Context, path string, record any) (string, error)
}

// FileSink writes results as indented JSON files.
// Relative paths are resolved under Dir and may not escape it.
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Save writes record to path as JSON, creating parent directories.
func (s *FileSink) Save(ctx context.Context, path string, record any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshalling result: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("creating result directory: %w", err)
	}
	if err := os.WriteFile(target, append(data, '\n'), 0o640); err != nil { //nolint:gosec // results are not secret
		return "", fmt.Errorf("writing result: %w", err)
	}
	return target, nil
}

func (s *FileSink) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) || s.Dir == "" {
		return filepath.Clean(path), nil
	}

	root := filepath.Clean(s.Dir)
	target := filepath.Join(root, path)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes result directory", path)
	}
	return target, nil
}
