package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the sixd6 configuration file
// (~/.config/sixd6/config.yaml). Pointer fields distinguish "not set" from
// zero values.
type Config struct {
	Station  string `yaml:"station"`
	Location string `yaml:"location"`
	Network  string `yaml:"network"`
	Output   string `yaml:"output"`

	Cut           *time.Duration `yaml:"cut"`
	AnchorSpacing *int64         `yaml:"anchor_spacing"`
	Parallel      *bool          `yaml:"parallel"`
	Progress      *bool          `yaml:"progress"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// cfg is loaded by the root Before hook.
var cfg Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "sixd6", "config.yaml")
}

// LoadConfig reads the config file at path, or at the default location when
// path is empty. A missing default file yields a zero Config; a missing
// explicit file is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// applyLoggingConfig applies config file defaults to the logging flags when
// they were not set explicitly.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyConvertConfig applies config file defaults to convert command
// variables when the corresponding CLI flag was not explicitly set.
func applyConvertConfig(c *cli.Command, cfg Config, f *convertFlags) {
	if cfg.Station != "" && !c.IsSet("station") {
		f.station = cfg.Station
	}
	if cfg.Location != "" && !c.IsSet("location") {
		f.location = cfg.Location
	}
	if cfg.Network != "" && !c.IsSet("network") {
		f.network = cfg.Network
	}
	if cfg.Output != "" && !c.IsSet("output") {
		f.output = cfg.Output
	}
	if cfg.Cut != nil && !c.IsSet("cut") {
		f.cut = *cfg.Cut
	}
	if cfg.AnchorSpacing != nil && !c.IsSet("anchor-spacing") {
		f.anchorSpacing = *cfg.AnchorSpacing
	}
	if cfg.Parallel != nil && !c.IsSet("parallel") {
		f.parallel = *cfg.Parallel
	}
}
