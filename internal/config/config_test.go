package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeOverDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader("jobs: 3\ndelay_bodies: true\nmodules:\n  Math: ^1.2\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if cfg.Jobs != 3 || !cfg.DelayBodies {
		t.Errorf("unexpected config %+v", cfg)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("default log level lost: %q", cfg.LogLevel)
	}

	if got := cfg.Constraint("Math"); got != "^1.2" {
		t.Errorf("Constraint(Math) = %q", got)
	}

	if got := cfg.Constraint("Geo"); got != "" {
		t.Errorf("Constraint(Geo) = %q", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []string{
		"jobs: -1\n",
		"log_level: loud\n",
		"unknown_key: 1\n",
	}

	for _, src := range tests {
		if _, err := Decode(strings.NewReader(src)); err == nil {
			t.Errorf("Decode(%q) should fail", src)
		}
	}
}

func TestEmptyFileIsDefault(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if cfg.Name != "main" {
		t.Errorf("Name = %q", cfg.Name)
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")

	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Find(nested); !errors.Is(err, ErrNotFound) && err != nil {
		// a stray ozc.yaml above the temp dir is tolerated
		t.Fatalf("Find: %v", err)
	}

	want := filepath.Join(root, FileName)
	if err := Save(want, &Config{Name: "proj", ModulePaths: []string{"mods"}, LogLevel: "info"}); err != nil {
		t.Fatal(err)
	}

	got, err := Find(nested)
	if err != nil || got != want {
		t.Fatalf("Find() = %q, %v; want %q", got, err, want)
	}

	cfg, err := Discover(nested)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if cfg.Name != "proj" || cfg.ModulePaths[0] != filepath.Join(root, "mods") {
		t.Errorf("unexpected config %+v", cfg)
	}
}
