package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a job manifest from the given file path.
//
// The format is chosen by extension: .yaml/.yml for YAML, .json for JSON;
// anything else is tried as YAML first, then JSON. The raw document is
// validated against the embedded schema before decoding, so unknown fields
// are rejected rather than silently dropped, and defaults are applied to
// the result.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job manifest not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading job manifest: %s", path)
		}
		return nil, fmt.Errorf("read job manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a job manifest from raw bytes.
// path is used for format detection and error messages; it may be empty.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(data) == 0 {
		return nil, errors.New("job manifest is empty")
	}

	// Validate the raw document, not the decoded struct: struct decoding
	// would silently drop the unknown fields the schema is there to reject.
	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	m, err := decodeManifest(data, path)
	if err != nil {
		return nil, err
	}
	m.ApplyDefaults()
	return m, nil
}

// LoadFromReader reads and validates a job manifest from r.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read job manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// decodeManifest unmarshals the manifest according to the file extension.
func decodeManifest(data []byte, path string) (*Manifest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSON(data)
	case ".yaml", ".yml":
		return decodeYAML(data)
	default:
		// YAML first: it is the preferred format and a superset of JSON.
		m, yamlErr := decodeYAML(data)
		if yamlErr == nil {
			return m, nil
		}
		if m, jsonErr := decodeJSON(data); jsonErr == nil {
			return m, nil
		}
		return nil, fmt.Errorf("parse job manifest (tried YAML and JSON): %w", yamlErr)
	}
}

func decodeJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON in job manifest: %w", err)
	}
	return &m, nil
}

func decodeYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML in job manifest: %w", err)
	}
	return &m, nil
}

// toJSON renders the input as JSON for schema validation, converting from
// YAML when necessary.
func toJSON(data []byte, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON in job manifest: %w", err)
		}
		return data, nil
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		jsonData, yamlErr := yamlToJSON(data)
		if yamlErr == nil {
			return jsonData, nil
		}
		var raw any
		if err := json.Unmarshal(data, &raw); err == nil {
			return data, nil
		}
		return nil, fmt.Errorf("parse job manifest (tried YAML and JSON): %w", yamlErr)
	}
}

// yamlToJSON re-encodes a YAML document as JSON.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in job manifest: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert job manifest to JSON: %w", err)
	}
	return jsonData, nil
}
