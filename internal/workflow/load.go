package workflow

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDefinition []byte

type definitionFile struct {
	Name   string              `yaml:"name"`
	Stages []Stage             `yaml:"stages"`
	Edges  []Edge              `yaml:"edges"`
	Routes map[Decision]string `yaml:"routes"`
}

// Default returns the built-in medical report definition.
func Default() *Definition {
	d, err := ParseDefinition(defaultDefinition)
	if err != nil {
		panic(fmt.Sprintf("workflow: built-in definition: %v", err))
	}
	return d
}

// ParseDefinition decodes and validates a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigurationFailure{Reason: fmt.Sprintf("parse definition: %v", err)}
	}
	return NewDefinition(f.Name, f.Stages, f.Edges, f.Routes)
}

// LoadDefinition reads path, or returns Default when path is empty.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	return ParseDefinition(data)
}
