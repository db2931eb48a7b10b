package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nerrad567/device-orchestra/internal/device"
)

// LoadDevices reads a device file.
func LoadDevices(path string) ([]device.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Manifest path comes from trusted configuration
	if err != nil {
		return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
	}
	records, err := ParseDevices(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseDevices decodes device records in list or map form.
//
// Returns an error wrapping ErrInvalidManifest for malformed input. Unknown
// types and duplicate IDs are left to device.Manager.Load.
func ParseDevices(data []byte, format Format) ([]device.Config, error) {
	doc, err := decode(data, format)
	if err != nil {
		return nil, err
	}

	list, err := deviceList(doc)
	if err != nil {
		return nil, err
	}
	if err := validate(kindDevices, list); err != nil {
		return nil, err
	}

	var records []device.Config
	if err := remarshal(list, &records); err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Params == nil {
			records[i].Params = device.Params{}
			continue
		}
		normalizeNumbers(map[string]any(records[i].Params))
	}
	return records, nil
}

// deviceList turns either accepted shape into the list shape.
func deviceList(doc document) ([]any, error) {
	switch v := doc.value.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	case map[string]any:
		list := make([]any, 0, len(doc.keys))
		for _, id := range doc.keys {
			entry, ok := v[id].(map[string]any)
			if !ok {
				return nil, &SchemaError{Kind: kindDevices, Violations: []string{
					fmt.Sprintf("devices.%s: must be an object with a type", id),
				}}
			}
			list = append(list, fromMapEntry(id, entry))
		}
		return list, nil
	default:
		return nil, &SchemaError{Kind: kindDevices, Violations: []string{
			fmt.Sprintf("devices: must be a list or a map, got %T", v),
		}}
	}
}

// fromMapEntry builds a record from map form. A nested params object is
// merged with the entry's other keys; explicit keys win.
func fromMapEntry(id string, entry map[string]any) map[string]any {
	params := map[string]any{}
	if nested, ok := entry["params"].(map[string]any); ok {
		for k, v := range nested {
			params[k] = v
		}
	}
	for k, v := range entry {
		if k == "type" || k == "params" {
			continue
		}
		params[k] = v
	}

	rec := map[string]any{"id": id, "params": params}
	if t, ok := entry["type"]; ok {
		rec["type"] = t
	}
	return rec
}

// remarshal converts a validated generic document into typed values.
// Numbers inside untyped maps come back as json.Number; callers pass those
// maps through normalizeNumbers.
func remarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return nil
}
