package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"permit-workers/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Document is the on-disk catalog layout.
type Document struct {
	Stages       []models.Stage       `yaml:"stages"`
	Requirements []models.Requirement `yaml:"requirements"`
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: document is empty")
	}
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return New(doc.Stages, doc.Requirements)
}

// Load reads the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default is the built-in four stage permit pipeline.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// DefaultDocument returns the raw built-in catalog.
func DefaultDocument() []byte {
	return append([]byte(nil), defaultCatalog...)
}
