package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/test"
	"github.com/xyproto/env/v2"
)

// setenv wraps t.Setenv for the xyproto/env cache: the library reads the
// process environment once, so it must be told to re-read after every
// Setenv and again after the test's env restore.
func setenv(t *testing.T, key, value string) {
	t.Helper()
	t.Cleanup(env.Load)
	t.Setenv(key, value)
	env.Load()
}

func TestDefault(t *testing.T) {
	cfg := Default()
	test.AssertEqual(t, cfg.CompilerName, "autoparallel")
	test.AssertEqual(t, cfg.TabWidth, 2)
	test.AssertEqual(t, cfg.KernelPrefix, "kernel_")
	if cfg.ListAnnotations != nil {
		t.Error("ListAnnotations should default to unset")
	}
}

func TestDefaultEnvOverrides(t *testing.T) {
	setenv(t, "AUTOPARALLEL_NAME", "par")
	setenv(t, "AUTOPARALLEL_TAB_WIDTH", "4")

	cfg := Default()
	test.AssertEqual(t, cfg.CompilerName, "par")
	test.AssertEqual(t, cfg.TabWidth, 4)
	test.AssertEqual(t, cfg.KernelPrefix, "kernel_")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoparallel.json")
	content := `{"compilerName": "par", "kernelPrefix": "region_", "listAnnotations": true}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	test.AssertEqual(t, cfg.CompilerName, "par")
	test.AssertEqual(t, cfg.KernelPrefix, "region_")
	// Unset fields keep their defaults.
	test.AssertEqual(t, cfg.TabWidth, 2)
	if cfg.ListAnnotations == nil || !*cfg.ListAnnotations {
		t.Error("ListAnnotations = unset, want true")
	}
}

func TestLoadFileEnvStillWins(t *testing.T) {
	setenv(t, "AUTOPARALLEL_NAME", "fromenv")

	dir := t.TempDir()
	path := filepath.Join(dir, "autoparallel.json")
	if err := os.WriteFile(path, []byte(`{"compilerName": "fromfile"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	test.AssertEqual(t, cfg.CompilerName, "fromenv")
}

func TestLoadSearchesParentDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, ".autoparallelrc")
	if err := os.WriteFile(path, []byte(`{"kernelPrefix": "deep_"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, used, err := Load(nested)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	test.AssertEqual(t, used, path)
	test.AssertEqual(t, cfg.KernelPrefix, "deep_")
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, used, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	test.AssertEqual(t, used, "")
	test.AssertEqual(t, cfg.CompilerName, "autoparallel")
}
