// Package config handles pyvm.toml / pyvm.yaml settings files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileNames are the settings files FindAndLoad looks for, in order.
var FileNames = []string{"pyvm.toml", "pyvm.yaml", "pyvm.yml"}

// Config is the full set of pyvm settings.
type Config struct {
	Log   Log   `toml:"log" yaml:"log"`
	VM    VM    `toml:"vm" yaml:"vm"`
	Cache Cache `toml:"cache" yaml:"cache"`

	// Path is the file the config was loaded from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

type Log struct {
	// Verbosity follows commonlog: 0 notice, 1 info, 2 and above debug.
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

type VM struct {
	MaxCallDepth int  `toml:"max-call-depth" yaml:"max-call-depth"`
	Trace        bool `toml:"trace" yaml:"trace"`
}

// Cache configures the compiled-code cache. An empty Driver disables it.
type Cache struct {
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

const DefaultMaxCallDepth = 1000

// Default returns the settings used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses a settings file, choosing the format by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, filepath.Ext(path))
	}

	c.Path = path
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir looking for a settings file. It
// returns the defaults when none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.VM.MaxCallDepth <= 0 {
		c.VM.MaxCallDepth = DefaultMaxCallDepth
	}
	if c.Cache.Driver == "sqlite" && c.Cache.DSN == "" {
		dir := "."
		if c.Path != "" {
			dir = filepath.Dir(c.Path)
		}
		c.Cache.DSN = filepath.Join(dir, ".pyvm-cache.db")
	}
}

func (c *Config) validate() error {
	if c.Log.Verbosity < 0 {
		return fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity)
	}
	switch c.Cache.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported cache.driver %q", c.Cache.Driver)
	}
	return nil
}
