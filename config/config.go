// Package config handles operator configuration for voxup.
//
// Config is stored at $XDG_CONFIG_HOME/voxup/config.yaml (defaults to
// ~/.config/voxup/config.yaml). Every field has a working default, so a
// missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"voxup/engine"
	"voxup/pipeline"
)

// Runtime selects how the inference worker runs.
const (
	RuntimeProcess   = "process"
	RuntimeContainer = "container"
)

// Service holds the worker launch preferences.
type Service struct {
	Host      string           `yaml:"host,omitempty"`
	Port      int              `yaml:"port,omitempty"`
	Device    engine.Device    `yaml:"device,omitempty"`
	Precision engine.Precision `yaml:"precision,omitempty"`
}

// Config is the operator-facing configuration.
type Config struct {
	// InstallDir is where the index-tts checkout lives.
	InstallDir string `yaml:"install-dir,omitempty"`
	// ModelDir overrides the model weight location; empty means
	// checkpoints/ inside the install dir.
	ModelDir string `yaml:"model-dir,omitempty"`
	// Region selects download mirrors: "global" or "mainland-china".
	Region string `yaml:"region,omitempty"`
	// Runtime is "process" (uv run in the checkout) or "container".
	Runtime string `yaml:"runtime,omitempty"`
	// Image overrides the container image when Runtime is "container".
	Image string `yaml:"image,omitempty"`

	Service Service `yaml:"service"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		InstallDir: filepath.Join(dataDir(), "index-tts"),
		Region:     pipeline.RegionGlobal,
		Runtime:    RuntimeProcess,
		Service: Service{
			Host:      "127.0.0.1",
			Port:      7860,
			Device:    engine.DeviceCPU,
			Precision: engine.PrecisionFP32,
		},
	}
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(baseDir("XDG_CONFIG_HOME", ".config"), "voxup", "config.yaml")
}

// StatePath returns the snapshot database location under the XDG state
// directory.
func StatePath() string {
	return filepath.Join(baseDir("XDG_STATE_HOME", filepath.Join(".local", "state")), "voxup", "voxup.db")
}

// Load reads the config file and fills unset fields with defaults. A
// missing file yields the defaults.
func Load() (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config to disk, creating directories as needed.
func (c Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects values no component can act on.
func (c Config) Validate() error {
	switch c.Region {
	case pipeline.RegionGlobal, pipeline.RegionMainlandChina:
	default:
		return fmt.Errorf("unknown region %q", c.Region)
	}
	switch c.Runtime {
	case RuntimeProcess, RuntimeContainer:
	default:
		return fmt.Errorf("unknown runtime %q", c.Runtime)
	}
	switch c.Service.Device {
	case engine.DeviceCPU, engine.DeviceGPU:
	default:
		return fmt.Errorf("unknown device %q", c.Service.Device)
	}
	switch c.Service.Precision {
	case engine.PrecisionFP32, engine.PrecisionFP16:
	default:
		return fmt.Errorf("unknown precision %q", c.Service.Precision)
	}
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Service.Port)
	}
	return nil
}

// Pipeline maps the config to setup pipeline inputs.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		InstallDir: c.InstallDir,
		ModelDir:   c.ModelDir,
		Region:     c.Region,
	}
}

// Engine maps the config to a worker launch config.
func (c Config) Engine() engine.Config {
	cfg := engine.Config{
		Dir:       c.InstallDir,
		Host:      c.Service.Host,
		Port:      c.Service.Port,
		Device:    c.Service.Device,
		Precision: c.Service.Precision,
	}
	if c.Region == pipeline.RegionMainlandChina {
		cfg.HFEndpoint = pipeline.HFMirrorURL
	}
	return cfg
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.InstallDir == "" {
		c.InstallDir = def.InstallDir
	}
	if c.Region == "" {
		c.Region = def.Region
	}
	if c.Runtime == "" {
		c.Runtime = def.Runtime
	}
	if c.Service.Host == "" {
		c.Service.Host = def.Service.Host
	}
	if c.Service.Port == 0 {
		c.Service.Port = def.Service.Port
	}
	if c.Service.Device == "" {
		c.Service.Device = def.Service.Device
	}
	if c.Service.Precision == "" {
		c.Service.Precision = def.Service.Precision
	}
}

func baseDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}

func dataDir() string {
	return filepath.Join(baseDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "voxup")
}
