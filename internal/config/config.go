// Package config loads the veq.yaml tool configuration. Every field is
// optional: running without a config file is the common case and yields
// the defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultBaselinePath is where accepted findings are stored when the
// config does not name a database.
const DefaultBaselinePath = ".veq/baseline.db"

// Config represents the top-level veq.yaml configuration.
type Config struct {
	// Baseline is the path to the accepted-findings database, relative
	// to the working directory. Defaults to .veq/baseline.db.
	Baseline string `yaml:"baseline,omitempty"`

	// Exclude lists glob patterns of type names to skip during checks
	// (e.g. "*Cache").
	Exclude []string `yaml:"exclude,omitempty"`

	// ProtoImportPaths lists directories searched for proto imports when
	// checking .proto files.
	ProtoImportPaths []string `yaml:"proto_import_paths,omitempty"`

	// GoPackages lists the package patterns checked in Go mode when no
	// explicit target is given. Defaults to ./...
	GoPackages []string `yaml:"go_packages,omitempty"`
}

// LoadConfig reads and parses a veq.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses veq.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	// Unknown keys are config typos, not extension points.
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for veq.yaml starting from dir and walking up to
// parent directories, similar to how .gitignore is found.
// Returns the path to the config file and nil error if found,
// or empty string and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, "veq.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		// Also check veq.yml (common alternative)
		candidate = filepath.Join(dir, "veq.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// Resolve loads the config at explicit when given, otherwise discovers
// one from dir. A missing config yields the defaults.
func Resolve(explicit, dir string) (*Config, error) {
	path := explicit
	if path == "" {
		found, err := FindConfig(dir)
		if err != nil {
			return nil, err
		}
		path = found
	}
	if path == "" {
		cfg := &Config{}
		cfg.setDefaults()
		return cfg, nil
	}
	return LoadConfig(path)
}

// validate checks the configuration for semantic errors.
func (c *Config) validate(path string) error {
	for i, g := range c.Exclude {
		if _, err := filepath.Match(g, "probe"); err != nil {
			return fmt.Errorf("%s: exclude[%d]: bad pattern %q: %v", path, i, g, err)
		}
	}
	return nil
}

// setDefaults fills in default values for omitted fields.
func (c *Config) setDefaults() {
	if c.Baseline == "" {
		c.Baseline = DefaultBaselinePath
	}
	if len(c.GoPackages) == 0 {
		c.GoPackages = []string{"./..."}
	}
}
