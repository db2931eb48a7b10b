package manifest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidManifest is returned for any file that cannot be turned
	// into device records or a pipeline.
	ErrInvalidManifest = errors.New("manifest: invalid manifest")

	// ErrUnsupportedFormat is returned for an unknown Format value.
	ErrUnsupportedFormat = errors.New("manifest: unsupported format")
)

// SchemaError lists every schema violation found in one document.
type SchemaError struct {
	Kind       string
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s manifest: %d problem(s): %s", e.Kind, len(e.Violations), strings.Join(e.Violations, "; "))
}

// Unwrap returns ErrInvalidManifest.
func (e *SchemaError) Unwrap() error { return ErrInvalidManifest }
