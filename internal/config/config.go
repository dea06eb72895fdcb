// Package config loads the project configuration file ozc.yaml.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file searched for by Find.
const FileName = "ozc.yaml"

// ErrNotFound is returned by Find when no configuration file exists.
var ErrNotFound = errors.New("config: no " + FileName + " found")

// Config holds the settings shared by every compilation of a project.
type Config struct {
	// Path is the file the configuration was loaded from, if any.
	Path string `yaml:"-"`

	Name string `yaml:"name"`
	// ModulePaths lists directories holding external module manifests.
	ModulePaths []string `yaml:"module_paths"`
	// Modules maps module names to semver constraints used by imports.
	Modules map[string]string `yaml:"modules"`
	// Jobs bounds the number of units compiled in parallel.
	Jobs           int    `yaml:"jobs"`
	DelayBodies    bool   `yaml:"delay_bodies"`
	ValidatePhases bool   `yaml:"validate"`
	// Playground wraps the top-level values of main units in log calls.
	Playground bool   `yaml:"playground"`
	LogLevel   string `yaml:"log_level"`
	Output     string `yaml:"output"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Name:     "main",
		Modules:  map[string]string{},
		Jobs:     runtime.GOMAXPROCS(0),
		LogLevel: "warn",
	}
}

// Constraint returns the configured version constraint for module, or "".
func (c *Config) Constraint(module string) string {
	if c == nil {
		return ""
	}

	return c.Modules[module]
}

// Load reads a configuration file. Unset fields keep their defaults and
// relative module paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", absPath, err)
	}
	defer file.Close()

	cfg, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", absPath, err)
	}

	cfg.Path = absPath

	base := filepath.Dir(absPath)
	for i, p := range cfg.ModulePaths {
		if !filepath.IsAbs(p) {
			cfg.ModulePaths[i] = filepath.Join(base, filepath.FromSlash(p))
		}
	}

	return cfg, nil
}

// Decode parses configuration YAML over the defaults.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if cfg.Modules == nil {
		cfg.Modules = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	var issues []string

	if c.Jobs < 0 {
		issues = append(issues, fmt.Sprintf("jobs must not be negative (got %d)", c.Jobs))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "silent", "error", "warn", "info", "debug":
	default:
		issues = append(issues, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}

	for name, constraint := range c.Modules {
		if strings.TrimSpace(name) == "" {
			issues = append(issues, fmt.Sprintf("module constraint %q has an empty module name", constraint))
		}
	}

	if len(issues) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(issues, "; "))
	}

	return nil
}

// Save writes c as YAML to path.
func Save(path string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Find looks for ozc.yaml in start and its parent directories.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("config: resolve %q: %w", start, err)
	}

	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		candidate := filepath.Join(dir, FileName)

		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}

		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}

		dir = parent
	}
}

// Discover loads the configuration governing start, falling back to the
// defaults when no file exists.
func Discover(start string) (*Config, error) {
	path, err := Find(start)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}

	if err != nil {
		return nil, err
	}

	return Load(path)
}
