package meme

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is an input file: either a bare JSON array of records or an
// object wrapping the array in a "data" field. The wrapper shape is kept so
// filtered output can preserve it.
type Document struct {
	Records []Record
	Wrapped bool
	extra   map[string]json.RawMessage
}

// ReadDocument loads and validates an input file.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocument(data)
}

// ParseDocument accepts `[...]` or `{"data": [...], ...}`.
func ParseDocument(data []byte) (*Document, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err == nil {
		return &Document{Records: records}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("input must be a JSON array or an object with a data array")
	}
	raw, ok := obj["data"]
	if !ok {
		return nil, fmt.Errorf("input must be a JSON array or an object with a data array")
	}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("data field must be an array of records: %w", err)
	}
	delete(obj, "data")
	return &Document{Records: records, Wrapped: true, extra: obj}, nil
}

// Marshal serializes the document with the given records, preserving the
// original wrapper shape and any sibling fields.
func (d *Document) Marshal(records []Record) ([]byte, error) {
	if !d.Wrapped {
		return json.MarshalIndent(records, "", "  ")
	}
	obj := make(map[string]any, len(d.extra)+1)
	for k, v := range d.extra {
		obj[k] = v
	}
	obj["data"] = records
	return json.MarshalIndent(obj, "", "  ")
}

// ValidateNames rejects batches with duplicate or empty record names.
// Names are the checkpoint identity; processing duplicates would silently
// corrupt the output file.
func ValidateNames(records []Record) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.Name == "" {
			return fmt.Errorf("record %d has no name", i)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate record name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}
