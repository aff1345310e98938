package codegen

import (
	_ "embed"
	"errors"
	"fmt"
	"go/token"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// DefaultRuntimeImport is the package generated clients call into.
const DefaultRuntimeImport = "github.com/tonimelisma/msgraph-client/pkg/graph"

// Config drives a generation run.
type Config struct {
	// Package is the name of the generated package.
	Package string `yaml:"package"`
	// RuntimeImport is the import path of pkg/graph.
	RuntimeImport string `yaml:"runtimeImport"`
	// InferSecondaries turns operationId links that match the path into
	// secondary clients when no rule covers them.
	InferSecondaries bool `yaml:"inferSecondaries"`
	// Ignore drops operations whose full path contains any entry.
	Ignore    []string       `yaml:"ignore"`
	Resources []ResourceRule `yaml:"resources"`
}

// ResourceRule is the YAML form of a Definition plus its ignore rules.
type ResourceRule struct {
	Kind          DefinitionKind `yaml:"kind"`
	Segment       string         `yaml:"segment,omitempty"`
	StartFilter   string         `yaml:"startFilter,omitempty"`
	SecondaryName string         `yaml:"secondaryName,omitempty"`
	Modifier      string         `yaml:"modifier,omitempty"`
	// Ignore drops operations of this client whose path, relative to the
	// client, contains any entry.
	Ignore []string `yaml:"ignore,omitempty"`
}

// DefaultConfig returns the embedded configuration.
func DefaultConfig() (*Config, error) {
	return ParseConfig(defaultConfigYAML)
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading codegen config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing codegen config: %w", err)
	}
	if cfg.RuntimeImport == "" {
		cfg.RuntimeImport = DefaultRuntimeImport
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the package name and every rule.
func (c *Config) Validate() error {
	if c.Package == "" {
		return errors.New("codegen config: package is required")
	}
	if !token.IsIdentifier(c.Package) {
		return fmt.Errorf("codegen config: %q is not a valid package name", c.Package)
	}
	for i, r := range c.Resources {
		switch r.Kind {
		case Main:
			if r.Segment == "" {
				return fmt.Errorf("codegen config: resources[%d]: main needs a segment", i)
			}
		case Secondary:
			if r.StartFilter == "" {
				return fmt.Errorf("codegen config: resources[%d]: secondary needs a startFilter", i)
			}
		default:
			return fmt.Errorf("codegen config: resources[%d]: unknown kind %q", i, r.Kind)
		}
	}
	return nil
}

// Registry builds the registry the grouper uses.
func (c *Config) Registry() (*Registry, error) {
	r := NewRegistry()
	for _, s := range c.Ignore {
		r.AddIgnore(PathContainsMulti{s})
	}
	for i, rule := range c.Resources {
		var d Definition
		switch rule.Kind {
		case Main:
			d = NewMain(rule.Segment, rule.Modifier)
		case Secondary:
			var err error
			d, err = NewSecondary(rule.StartFilter, rule.SecondaryName, rule.Modifier)
			if err != nil {
				return nil, fmt.Errorf("codegen config: resources[%d]: %w", i, err)
			}
		}
		r.Add(d)
		if len(rule.Ignore) > 0 {
			r.AddFilter(d.Key, PathContainsMulti(rule.Ignore))
		}
	}
	return r, nil
}
