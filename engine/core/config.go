package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RenderConfig struct {
	// Driver is "vulkan" or "soft".
	Driver string `toml:"driver"`
	// Output is the file written by the image target; the extension picks the encoder.
	Output      string     `toml:"output"`
	ClearColor  [4]float32 `toml:"clear_color"`
	Projection  string     `toml:"projection"`
	FarPlane    float32    `toml:"far_plane"`
	PolygonMode string     `toml:"polygon_mode"`
	Topology    string     `toml:"topology"`
	LineWidth   float32    `toml:"line_width"`
	Layout      string     `toml:"vertex_layout"`
	Validation  bool       `toml:"validation"`
}

type ShaderConfig struct {
	Vertex   string `toml:"vertex"`
	Fragment string `toml:"fragment"`
	// Entry points are required for .wgsl files and default to "main" for
	// .spv files.
	VertexEntry   string `toml:"vertex_entry"`
	FragmentEntry string `toml:"fragment_entry"`
	Watch         bool   `toml:"watch"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Window  WindowConfig `toml:"window"`
	Render  RenderConfig `toml:"render"`
	Shaders ShaderConfig `toml:"shaders"`
	Log     LogConfig    `toml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "vulx",
			Width:  640,
			Height: 480,
		},
		Render: RenderConfig{
			Driver:      "vulkan",
			Output:      "out.png",
			ClearColor:  [4]float32{0, 0, 0, 1},
			Projection:  "ortho",
			FarPlane:    100,
			PolygonMode: "fill",
			Topology:    "triangle_list",
			LineWidth:   1,
			Layout:      "vertex4_color4",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig. Keys absent from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("config %s:%d:%d: %w", path, row, col, err)
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	switch c.Render.Driver {
	case "vulkan", "soft":
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Render.Driver))
	}
	switch c.Render.Projection {
	case "ortho", "perspective":
	default:
		errs = append(errs, fmt.Errorf("unknown projection %q", c.Render.Projection))
	}
	if c.Render.FarPlane <= 0 {
		errs = append(errs, fmt.Errorf("far plane must be positive, got %v", c.Render.FarPlane))
	}
	switch c.Render.PolygonMode {
	case "fill", "line":
	default:
		errs = append(errs, fmt.Errorf("unknown polygon mode %q", c.Render.PolygonMode))
	}
	switch c.Render.Topology {
	case "triangle_list", "triangle_strip", "triangle_fan":
	default:
		errs = append(errs, fmt.Errorf("unknown topology %q", c.Render.Topology))
	}
	if c.Render.LineWidth <= 0 {
		errs = append(errs, fmt.Errorf("line width must be positive, got %v", c.Render.LineWidth))
	}
	if isWGSL(c.Shaders.Vertex) && c.Shaders.VertexEntry == "" {
		errs = append(errs, fmt.Errorf("vertex shader %s needs vertex_entry", c.Shaders.Vertex))
	}
	if isWGSL(c.Shaders.Fragment) && c.Shaders.FragmentEntry == "" {
		errs = append(errs, fmt.Errorf("fragment shader %s needs fragment_entry", c.Shaders.Fragment))
	}
	return errors.Join(errs...)
}

func isWGSL(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wgsl")
}
