// Package manifest provides manifest file parsing and validation for the
// gcp-module host.
//
// A manifest lists the resources a deployment wants, each naming the
// registry module that manages it and the spec handed to that module.
// String spec values of the form "ref:<name>" refer to an earlier resource
// and are replaced by its identity when the host runs.
//
// Supports both YAML (.yaml, .yml) and JSON (.json) manifest files.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/gcp-module-project/registry"
)

// RefPrefix marks a spec value that refers to another resource by name.
const RefPrefix = "ref:"

// Manifest represents the manifest file structure
type Manifest struct {
	// Version optionally pins the minimum registry version the manifest needs.
	Version   string     `yaml:"version,omitempty" json:"version,omitempty"`
	Resources []Resource `yaml:"resources" json:"resources"`
}

// Resource is one desired resource.
type Resource struct {
	Name   string         `yaml:"name" json:"name"`
	Module string         `yaml:"module" json:"module"`
	Spec   map[string]any `yaml:"spec" json:"spec"`
}

// RegistrySpec returns a copy of the resource spec.
func (r Resource) RegistrySpec() registry.Spec {
	return registry.Spec(r.Spec).Clone()
}

// Refs returns the names referenced from the resource spec.
func (r Resource) Refs() []string {
	var refs []string
	walk(r.Spec, func(s string) {
		if name, ok := strings.CutPrefix(s, RefPrefix); ok {
			refs = append(refs, name)
		}
	})
	return refs
}

func walk(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		for _, val := range t {
			walk(val, fn)
		}
	case []any:
		for _, val := range t {
			walk(val, fn)
		}
	}
}

// Load loads and parses a manifest file (supports .yaml, .yml, and .json)
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest

	// Detect format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest (unknown extension %s, tried YAML): %w", ext, err)
		}
	}

	return &m, nil
}

// Save saves a manifest to file (format determined by file extension)
func Save(m *Manifest, path string) error {
	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal manifest JSON: %w", err)
		}
	default:
		data, err = yaml.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal manifest YAML: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}

	return nil
}
