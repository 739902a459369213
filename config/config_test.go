package config

import (
	"os"
	"path/filepath"
	"testing"

	"voxup/engine"
	"voxup/pipeline"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region != pipeline.RegionGlobal || cfg.Runtime != RuntimeProcess {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Service.Host != "127.0.0.1" || cfg.Service.Port != 7860 {
		t.Fatalf("service defaults = %+v", cfg.Service)
	}
	if cfg.InstallDir == "" {
		t.Fatal("no default install dir")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	in := Default()
	in.InstallDir = "/opt/index-tts"
	in.Region = pipeline.RegionMainlandChina
	in.Service.Device = engine.DeviceGPU
	in.Service.Precision = engine.PrecisionFP16
	if err := in.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.InstallDir != in.InstallDir || out.Region != in.Region {
		t.Fatalf("round trip = %+v", out)
	}
	if out.Service != in.Service {
		t.Fatalf("service = %+v", out.Service)
	}
}

func TestLoadFillsUnsetFields(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "voxup", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("install-dir: /opt/index-tts\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstallDir != "/opt/index-tts" {
		t.Fatalf("install dir = %q", cfg.InstallDir)
	}
	if cfg.Service.Port != 7860 || cfg.Region != pipeline.RegionGlobal {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnknownRegion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "voxup", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("region: moon\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("unknown region accepted")
	}
}

func TestEngineConfigUsesMirrorForMainlandChina(t *testing.T) {
	cfg := Default()
	cfg.Region = pipeline.RegionMainlandChina

	ec := cfg.Engine()
	if ec.HFEndpoint != pipeline.HFMirrorURL {
		t.Fatalf("HFEndpoint = %q", ec.HFEndpoint)
	}

	cfg.Region = pipeline.RegionGlobal
	if ec := cfg.Engine(); ec.HFEndpoint != "" {
		t.Fatalf("global region set HFEndpoint = %q", ec.HFEndpoint)
	}
}

func TestStatePathRespectsXDGStateHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	want := filepath.Join(dir, "voxup", "voxup.db")
	if got := StatePath(); got != want {
		t.Fatalf("StatePath = %q, want %q", got, want)
	}
}
