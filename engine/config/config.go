// Package config loads the demo's YAML configuration and watches it for edits.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Window holds the window settings.
type Window struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Renderer holds the orchestrator settings.
type Renderer struct {
	// MSAA is 1 or 4.
	MSAA int `yaml:"msaa"`
	// PresentMode is "vsync" or "uncapped".
	PresentMode      string     `yaml:"present_mode"`
	BatchCapacity    int        `yaml:"batch_capacity"`
	ReadbackCapacity uint64     `yaml:"readback_capacity"`
	ClearColor       [4]float64 `yaml:"clear_color"`
	ShaderDir        string     `yaml:"shader_dir"`
	ValidateShaders  bool       `yaml:"validate_shaders"`
	SoftwareAdapter  bool       `yaml:"software_adapter"`
}

// Sky holds the two gradient colors of the sky pass.
type Sky struct {
	ColorOne [4]float32 `yaml:"color_one"`
	ColorTwo [4]float32 `yaml:"color_two"`
}

// Config is the demo configuration file.
type Config struct {
	Window   Window   `yaml:"window"`
	Renderer Renderer `yaml:"renderer"`
	Sky      Sky      `yaml:"sky"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used for every key a file leaves out.
func Default() Config {
	return Config{
		Window: Window{Title: "oxy terrain", Width: 1280, Height: 720},
		Renderer: Renderer{
			MSAA:             4,
			PresentMode:      "uncapped",
			BatchCapacity:    20,
			ReadbackCapacity: 1 << 24,
			ClearColor:       [4]float64{0.1, 0.1, 0.1, 1},
		},
		Sky: Sky{
			ColorOne: [4]float32{0.42, 0.64, 0.91, 1},
			ColorTwo: [4]float32{0.86, 0.92, 0.98, 1},
		},
		LogLevel: "info",
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return fmt.Errorf("config: window size %dx%d", c.Window.Width, c.Window.Height)
	case c.Renderer.MSAA != 1 && c.Renderer.MSAA != 4:
		return fmt.Errorf("config: msaa must be 1 or 4, got %d", c.Renderer.MSAA)
	case c.Renderer.PresentMode != "vsync" && c.Renderer.PresentMode != "uncapped":
		return fmt.Errorf("config: unknown present mode %q", c.Renderer.PresentMode)
	case c.Renderer.BatchCapacity < 1:
		return errors.New("config: batch capacity must be at least 1")
	case c.Renderer.ReadbackCapacity%4 != 0 || c.Renderer.ReadbackCapacity < 8:
		return fmt.Errorf("config: readback capacity %d must be a multiple of 4 and at least 8", c.Renderer.ReadbackCapacity)
	}
	return nil
}

// Parse decodes data over the defaults and validates the result.
//
// Parameters:
//   - data: the YAML document
//
// Returns:
//   - Config: the configuration
//   - error: error if data is malformed, has unknown keys, or holds an invalid setting
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
//
// Parameters:
//   - path: the YAML file
//
// Returns:
//   - Config: the configuration
//   - error: error if the file cannot be read or parsed
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
