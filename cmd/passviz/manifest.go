package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"passviz/internal/ir"
	"passviz/internal/pass"
)

const manifestName = "passviz.toml"

type manifest struct {
	Path   string
	Root   string
	Config manifestConfig
}

type manifestConfig struct {
	Output   outputConfig   `toml:"output"`
	Dialects dialectsConfig `toml:"dialects"`
	Run      runConfig      `toml:"run"`
	Passes   []pass.Step    `toml:"pass"`
}

type outputConfig struct {
	// Path is "-" or empty for the stderr debug stream. A ".zst" suffix
	// compresses the report.
	Path   string `toml:"path"`
	Indent *int   `toml:"indent"`
}

type dialectsConfig struct {
	Names []string `toml:"names"`
	// AllowUnregistered defaults to true so arbitrary IR loads.
	AllowUnregistered *bool `toml:"allow_unregistered"`
}

type runConfig struct {
	Jobs    int  `toml:"jobs"`
	Timings bool `toml:"timings"`
}

// findManifest walks from startDir up to the filesystem root looking for
// passviz.toml.
func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, manifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadManifest(startDir string) (*manifest, bool, error) {
	path, ok, err := findManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadManifestConfig(path)
	if err != nil {
		return nil, true, err
	}
	return &manifest{Path: path, Root: filepath.Dir(path), Config: cfg}, true, nil
}

func loadManifestConfig(path string) (manifestConfig, error) {
	var cfg manifestConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return manifestConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return manifestConfig{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	for i, st := range cfg.Passes {
		if st.Name == "" {
			return manifestConfig{}, fmt.Errorf("%s: pass %d has no name", path, i+1)
		}
	}
	if cfg.Output.Indent != nil && *cfg.Output.Indent < 0 {
		return manifestConfig{}, fmt.Errorf("%s: output.indent must not be negative", path)
	}
	return cfg, nil
}

func (c manifestConfig) dialects() []ir.Dialect {
	out := make([]ir.Dialect, 0, len(c.Dialects.Names))
	for _, name := range c.Dialects.Names {
		out = append(out, ir.Dialect{Namespace: name})
	}
	return out
}

func (c manifestConfig) allowUnregistered() bool {
	return c.Dialects.AllowUnregistered == nil || *c.Dialects.AllowUnregistered
}

// resolveOutputPath anchors a relative output path at the manifest root.
func (m *manifest) resolveOutputPath() string {
	p := m.Config.Output.Path
	if p == "" || p == "-" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, p)
}
