package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a manifest encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// document is a decoded file plus the order of its top-level keys when it
// is a mapping. Go maps lose that order and map-form device files rely on it.
type document struct {
	value any
	keys  []string
}

func decode(data []byte, format Format) (document, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	case FormatYAML:
		return decodeYAML(data)
	default:
		return document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func decodeYAML(data []byte) (document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return document{}, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidManifest, err)
	}
	if len(root.Content) == 0 {
		return document{}, fmt.Errorf("%w: empty document", ErrInvalidManifest)
	}

	var doc document
	if err := root.Decode(&doc.value); err != nil {
		return document{}, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidManifest, err)
	}
	if top := root.Content[0]; top.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(top.Content); i += 2 {
			doc.keys = append(doc.keys, top.Content[i].Value)
		}
	}
	return doc, nil
}

func decodeJSON(data []byte) (document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return document{}, fmt.Errorf("%w: empty document", ErrInvalidManifest)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc.value); err != nil {
		return document{}, fmt.Errorf("%w: parsing JSON: %w", ErrInvalidManifest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return document{}, fmt.Errorf("%w: parsing JSON: trailing data after document", ErrInvalidManifest)
	}
	doc.value = normalizeNumbers(doc.value)

	if _, ok := doc.value.(map[string]any); ok {
		keys, err := jsonKeyOrder(data)
		if err != nil {
			return document{}, fmt.Errorf("%w: parsing JSON: %w", ErrInvalidManifest, err)
		}
		doc.keys = keys
	}
	return doc, nil
}

// jsonKeyOrder returns the top-level keys of a JSON object in file order.
func jsonKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil { // {
		return nil, err
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// normalizeNumbers turns json.Number into int when integral, else float64,
// so JSON and YAML files yield the same parameter types.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64() //nolint:errcheck // The decoder already accepted it as a number
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	}
	return v
}
