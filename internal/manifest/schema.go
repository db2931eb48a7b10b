package manifest

import (
	"embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	kindDevices  = "devices"
	kindPipeline = "pipeline"
)

var schemas = sync.OnceValues(func() (map[string]*gojsonschema.Schema, error) {
	out := make(map[string]*gojsonschema.Schema, 2)
	for kind, file := range map[string]string{
		kindDevices:  "schemas/devices.schema.json",
		kindPipeline: "schemas/pipeline.schema.json",
	} {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s schema: %w", kind, err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", kind, err)
		}
		out[kind] = s
	}
	return out, nil
})

// Schema returns the embedded JSON schema for kind ("devices" or "pipeline").
func Schema(kind string) ([]byte, error) {
	return schemaFS.ReadFile("schemas/" + kind + ".schema.json")
}

// validate checks doc against the schema for kind.
func validate(kind string, doc any) error {
	all, err := schemas()
	if err != nil {
		return err
	}

	result, err := all[kind].Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", fieldPath(kind, desc.Field()), desc.Description()))
	}
	return &SchemaError{Kind: kind, Violations: violations}
}

func fieldPath(kind, field string) string {
	if field == "" || field == "(root)" {
		return kind
	}
	return kind + "." + field
}
