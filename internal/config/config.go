// Package config handles loading compiler configuration.
//
// Configuration can be specified in a JSON file named autoparallel.json
// or .autoparallelrc. The config file is searched for in the current
// directory and parent directories. Environment variables override both
// defaults and file values.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
)

// Config carries the explicit compiler settings threaded through the
// transformer and emitter. There is no process-global state; every
// consumer receives its Config by value.
type Config struct {
	// CompilerName is used in emitted provenance headers.
	CompilerName string `json:"compilerName,omitempty"`

	// TabWidth is the indentation width of emitted source.
	TabWidth int `json:"tabWidth,omitempty"`

	// KernelPrefix prefixes the names of emitted kernel subroutines.
	KernelPrefix string `json:"kernelPrefix,omitempty"`

	// ListAnnotations controls whether annotation listings are printed.
	ListAnnotations *bool `json:"listAnnotations,omitempty"`
}

// Default returns the built-in settings with environment overrides
// applied: AUTOPARALLEL_NAME, AUTOPARALLEL_TAB_WIDTH and
// AUTOPARALLEL_KERNEL_PREFIX.
func Default() Config {
	return Config{
		CompilerName: env.Str("AUTOPARALLEL_NAME", "autoparallel"),
		TabWidth:     env.Int("AUTOPARALLEL_TAB_WIDTH", 2),
		KernelPrefix: env.Str("AUTOPARALLEL_KERNEL_PREFIX", "kernel_"),
	}
}

// ConfigFileNames are the names searched for config files, in order of
// preference.
var ConfigFileNames = []string{
	"autoparallel.json",
	".autoparallelrc",
	".autoparallelrc.json",
}

// Load searches for a config file starting from the given directory and
// walking up to parent directories, then merges it over Default.
// A missing config file is not an error; the second result is the path
// of the file used, or empty.
func Load(startDir string) (Config, string, error) {
	dir := startDir
	for {
		for _, name := range ConfigFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := LoadFile(path)
				return cfg, path, err
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), "", nil
		}
		dir = parent
	}
}

// LoadFile loads configuration from a specific file path, merged over
// Default. Environment overrides still win for fields the file sets.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return cfg, err
	}

	if file.CompilerName != "" && !env.Has("AUTOPARALLEL_NAME") {
		cfg.CompilerName = file.CompilerName
	}
	if file.TabWidth > 0 && !env.Has("AUTOPARALLEL_TAB_WIDTH") {
		cfg.TabWidth = file.TabWidth
	}
	if file.KernelPrefix != "" && !env.Has("AUTOPARALLEL_KERNEL_PREFIX") {
		cfg.KernelPrefix = file.KernelPrefix
	}
	cfg.ListAnnotations = file.ListAnnotations

	return cfg, nil
}
