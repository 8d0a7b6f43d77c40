package schema

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
)

// LoadFile reads a schema document from fs and lowers it. The format is chosen
// by extension: .yaml/.yml for YAML, anything else is JSON.
func LoadFile(fs afero.Fs, path string) (*Schema, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	doc, err := DecodeDocument(data, isYAML(path))
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ValidationError, err, "failed to parse schema file").With("path", path)
	}
	return doc.Lower()
}

// SaveFile writes the document form of s to fs.
func SaveFile(fs afero.Fs, path string, s *Schema) error {
	data, err := EncodeDocument(FromSchema(s), isYAML(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schema file %s: %w", path, err)
	}
	return nil
}

// DecodeDocument parses a document in YAML or JSON.
func DecodeDocument(data []byte, asYAML bool) (*Document, error) {
	var doc Document
	if asYAML {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode yaml document: %w", err)
		}
		return &doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode json document: %w", err)
	}
	return &doc, nil
}

// EncodeDocument serializes a document in YAML or indented JSON.
func EncodeDocument(doc *Document, asYAML bool) ([]byte, error) {
	if asYAML {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode yaml document: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode json document: %w", err)
	}
	return append(data, '\n'), nil
}

// MarshalSnapshot serializes the arena form of a schema, used for cache entries.
func MarshalSnapshot(s *Schema) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot is the inverse of MarshalSnapshot.
func UnmarshalSnapshot(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to deserialize schema: %w", err)
	}
	return &s, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
