package modules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	semver "github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk description of one module version:
//
//	name: Math
//	version: 1.2.0
//	interface: |
//	  func square(x: Int) -> Int
//
// The interface may instead live in a separate file named by
// interface_file, relative to the manifest.
type Manifest struct {
	Path          string
	Name          string
	Version       string
	Interface     string
	InterfaceFile string
}

type manifestFile struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Interface     string `yaml:"interface"`
	InterfaceFile string `yaml:"interface_file"`
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid module description"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "manifest %s: validation failed:", e.Path)

	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}

	return b.String()
}

var moduleNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadManifest reads and validates a module manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	m, err := DecodeManifest(file, absPath)
	if err != nil {
		return nil, err
	}

	if m.InterfaceFile != "" {
		src := m.InterfaceFile
		if !filepath.IsAbs(src) {
			src = filepath.Join(filepath.Dir(absPath), filepath.FromSlash(src))
		}

		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("manifest: interface of %s: %w", m.Name, err)
		}

		m.Interface = string(data)
	}

	return m, nil
}

// DecodeManifest parses a manifest from r. path is only used in messages.
func DecodeManifest(r io.Reader, path string) (*Manifest, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", path)
		}

		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}

	m := &Manifest{
		Path:          path,
		Name:          strings.TrimSpace(raw.Name),
		Version:       strings.TrimSpace(raw.Version),
		Interface:     raw.Interface,
		InterfaceFile: strings.TrimSpace(raw.InterfaceFile),
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manifest) validate() error {
	errs := ValidationError{Path: m.Path}

	switch {
	case m.Name == "":
		errs.Issues = append(errs.Issues, "name must be provided")
	case !moduleNamePattern.MatchString(m.Name):
		errs.Issues = append(errs.Issues, fmt.Sprintf("name %q is not an identifier", m.Name))
	}

	if m.Version == "" {
		errs.Issues = append(errs.Issues, "version must be provided")
	} else if _, err := semver.NewVersion(m.Version); err != nil {
		errs.Issues = append(errs.Issues, fmt.Sprintf("version %q is not a semantic version", m.Version))
	}

	if m.Interface != "" && m.InterfaceFile != "" {
		errs.Issues = append(errs.Issues, "interface and interface_file are mutually exclusive")
	}

	if len(errs.Issues) > 0 {
		return &errs
	}

	return nil
}

// AddManifest registers the module a manifest describes.
func (r *Registry) AddManifest(m *Manifest) (*Descriptor, error) {
	d, err := r.Add(m.Name, m.Version, m.Interface)
	if err != nil {
		return nil, err
	}

	d.Path = m.Path

	return d, nil
}

// LoadDir registers every *.yaml and *.yml manifest directly inside dir,
// in file name order. A missing directory is not an error.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("modules: read %s: %w", dir, err)
	}

	var paths []string

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	sort.Strings(paths)

	for _, p := range paths {
		m, err := LoadManifest(p)
		if err != nil {
			return err
		}

		if _, err := r.AddManifest(m); err != nil {
			return fmt.Errorf("modules: %s: %w", p, err)
		}
	}

	return nil
}
