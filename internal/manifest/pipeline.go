package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/device-orchestra/internal/pipeline"
)

// LoadPipeline reads a pipeline file. A pipeline without a name is named
// after the file.
func LoadPipeline(path string) (pipeline.Pipeline, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Pipeline path is supplied by the operator
	if err != nil {
		return pipeline.Pipeline{}, fmt.Errorf("manifest: reading %s: %w", path, err)
	}

	p, err := ParsePipeline(data, FormatFromPath(path))
	if err != nil {
		return pipeline.Pipeline{}, fmt.Errorf("%s: %w", path, err)
	}
	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return p, nil
}

// ParsePipeline decodes a bare step list or a {name, steps} object.
//
// Only the shape is checked here; device and action checks belong to
// pipeline.Validate.
func ParsePipeline(data []byte, format Format) (pipeline.Pipeline, error) {
	doc, err := decode(data, format)
	if err != nil {
		return pipeline.Pipeline{}, err
	}

	var obj any
	switch v := doc.value.(type) {
	case []any:
		obj = map[string]any{"steps": v}
	case map[string]any:
		obj = v
	case nil:
		obj = map[string]any{"steps": []any{}}
	default:
		return pipeline.Pipeline{}, &SchemaError{Kind: kindPipeline, Violations: []string{
			fmt.Sprintf("pipeline: must be a list of steps or an object, got %T", v),
		}}
	}

	if err := validate(kindPipeline, obj); err != nil {
		return pipeline.Pipeline{}, err
	}

	var p pipeline.Pipeline
	if err := remarshal(obj, &p); err != nil {
		return pipeline.Pipeline{}, err
	}
	if p.Steps == nil {
		p.Steps = []pipeline.Step{}
	}
	for _, step := range p.Steps {
		normalizeNumbers(map[string]any(step.Args))
	}
	return p, nil
}
