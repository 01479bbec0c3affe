package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads and parses the domain document at path. Callers
// typically resolve path from $BUSHI_CONFIG, falling back to
// "./bushi.yaml".
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrConfigInvalid, path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", ErrConfigInvalid, path, err)
	}
	return &doc, nil
}

// DocumentPath resolves the document path: $BUSHI_CONFIG if set,
// otherwise "bushi.yaml" in the current directory.
func DocumentPath() string {
	if path := os.Getenv("BUSHI_CONFIG"); path != "" {
		return path
	}
	return "bushi.yaml"
}
