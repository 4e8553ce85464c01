// Package config loads engine and demo settings from a TOML file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is where LoadOrDefault looks when no path is given.
const DefaultPath = "~/.config/hephaestus/config.toml"

type Config struct {
	App     App     `toml:"app"`
	Window  Window  `toml:"window"`
	Render  Render  `toml:"render"`
	Shaders Shaders `toml:"shaders"`
	Memory  Memory  `toml:"memory"`
}

type App struct {
	Name string `toml:"name"`
	// Version is "major.minor.patch".
	Version string `toml:"version"`
}

type Window struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type Render struct {
	Validation      bool       `toml:"validation"`
	FramesInFlight  int        `toml:"frames_in_flight"`
	FenceTimeout    Duration   `toml:"fence_timeout"`
	PreferredDevice string     `toml:"preferred_device"`
	ClearColor      [4]float32 `toml:"clear_color"`
}

type Shaders struct {
	Dir        string `toml:"dir"`
	Descriptor string `toml:"descriptor"`
	HotReload  bool   `toml:"hot_reload"`
}

type Memory struct {
	// PoolSize is the size of each device memory block buffers are
	// sub-allocated from, e.g. "16MB".
	PoolSize datasize.ByteSize `toml:"pool_size"`
}

// Duration is a time.Duration written as a Go duration string. "forever" or
// an empty string mean no timeout and decode to zero.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" || s == "forever" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration <= 0 {
		return []byte("forever"), nil
	}
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: App{
			Name:    "Hephaestus",
			Version: "0.1.0",
		},
		Window: Window{
			Title:  "Hephaestus",
			Width:  800,
			Height: 600,
		},
		Render: Render{
			Validation:     false,
			FramesInFlight: 2,
			ClearColor:     [4]float32{0, 0, 0, 1},
		},
		Shaders: Shaders{
			Dir:        "shaders",
			Descriptor: "shaders.meta",
		},
		Memory: Memory{
			PoolSize: 16 * datasize.MB,
		},
	}
}

// Load reads the TOML file at path over the defaults. A leading ~ in path and
// in shaders.dir is expanded. Relative shader directories are resolved against
// the directory of the file.
func Load(path string) (*Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	if !filepath.IsAbs(c.Shaders.Dir) {
		c.Shaders.Dir = filepath.Join(filepath.Dir(path), c.Shaders.Dir)
	}
	return c, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults. An
// empty path means DefaultPath.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding %s", path)
	}
	if _, err := os.Stat(expanded); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(expanded)
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}

	dir, err := homedir.Expand(c.Shaders.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding shaders.dir %s", c.Shaders.Dir)
	}
	c.Shaders.Dir = dir

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	case c.Render.FramesInFlight < 1:
		return errors.Newf("render.frames_in_flight must be at least 1, got %d", c.Render.FramesInFlight)
	case c.Render.FenceTimeout.Duration < 0:
		return errors.New("render.fence_timeout must not be negative")
	case c.Memory.PoolSize == 0:
		return errors.New("memory.pool_size must be positive")
	case c.Shaders.Descriptor == "":
		return errors.New("shaders.descriptor must not be empty")
	}
	for i, v := range c.Render.ClearColor {
		if v < 0 || v > 1 {
			return errors.Newf("render.clear_color[%d] = %v is outside [0, 1]", i, v)
		}
	}
	if _, _, _, err := c.App.ParseVersion(); err != nil {
		return err
	}
	return nil
}

// ParseVersion splits App.Version into its components.
func (a App) ParseVersion() (major, minor, patch uint32, err error) {
	var rest string
	n, _ := fmt.Sscanf(a.Version+" end", "%d.%d.%d %s", &major, &minor, &patch, &rest)
	if n != 4 || rest != "end" {
		return 0, 0, 0, errors.Newf("app.version %q is not major.minor.patch", a.Version)
	}
	return major, minor, patch, nil
}

// Write encodes c as TOML.
func (c *Config) Write(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return errors.Wrap(enc.Encode(c), "encoding config")
}
