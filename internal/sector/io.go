package sector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ImportJSON decodes and validates a registry document (code -> sector).
func ImportJSON(r io.Reader) (Registry, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var reg Registry
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("failed to decode sector registry: %w", err)
	}
	return normalize(reg)
}

// ExportJSON writes the registry as indented JSON.
func ExportJSON(w io.Writer, reg Registry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reg); err != nil {
		return fmt.Errorf("failed to encode sector registry: %w", err)
	}
	return nil
}

// ImportYAML decodes and validates a YAML registry document.
func ImportYAML(r io.Reader) (Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var reg Registry
	if err := dec.Decode(&reg); err != nil {
		return nil, fmt.Errorf("failed to decode sector registry: %w", err)
	}
	return normalize(reg)
}

// ExportYAML writes the registry as YAML.
func ExportYAML(w io.Writer, reg Registry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(reg); err != nil {
		return fmt.Errorf("failed to encode sector registry: %w", err)
	}
	return enc.Close()
}

// Load reads a registry file, choosing the codec from the extension.
func Load(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sector registry %s: %w", path, err)
	}
	if isYAML(path) {
		return ImportYAML(bytes.NewReader(data))
	}
	return ImportJSON(bytes.NewReader(data))
}

// Save writes a registry file, choosing the codec from the extension.
func Save(path string, reg Registry) error {
	var buf bytes.Buffer
	var err error
	if isYAML(path) {
		err = ExportYAML(&buf, reg)
	} else {
		err = ExportJSON(&buf, reg)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write sector registry %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func normalize(reg Registry) (Registry, error) {
	if reg == nil {
		reg = Registry{}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
