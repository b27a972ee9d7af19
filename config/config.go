// Package config handles vadd configuration via YAML files and environment
// variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--backend, --work-group-size, etc.)
//  2. Environment variables (VADD_*)
//  3. Config file (vadd.yaml)
//  4. Built-in defaults
//
// Example config file:
//
//	dispatch:
//	  backend: occa
//	  device_type: accelerator
//	  work_group_size: 256
//	  backend_props:
//	    - '{"mode": "CUDA", "device_id": 0}'
//	log:
//	  level: debug
//	  format: json
//
// Environment Variables:
//   - VADD_CONFIG="/etc/vadd.yaml"
//   - VADD_BACKEND="opencl", "occa" or "host"
//   - VADD_DEVICE_TYPE="all", "cpu" or "accelerator"
//   - VADD_WORK_GROUP_SIZE=16
//   - VADD_ENTRY_POINT="addVector"
//   - VADD_LOG_LEVEL="info"
//   - VADD_LOG_FORMAT="text" or "json"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/runner/builder"
	"github.com/notargets/vadd/utils"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory
const FileName = "vadd.yaml"

// Config is the complete tool configuration
type Config struct {
	Dispatch builder.Config `yaml:"dispatch"`
	Log      LogConfig      `yaml:"log"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadDefaults returns the built-in configuration
func LoadDefaults() *Config {
	return &Config{
		Dispatch: builder.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path, when path is not empty, then applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := LoadDefaults()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file onto cfg. Keys absent from the file keep
// their current values; unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnvVars overrides cfg from VADD_* environment variables
func ApplyEnvVars(cfg *Config) error {
	cfg.Dispatch.Backend = getEnv("VADD_BACKEND", cfg.Dispatch.Backend)
	cfg.Dispatch.EntryPoint = getEnv("VADD_ENTRY_POINT", cfg.Dispatch.EntryPoint)
	cfg.Log.Level = getEnv("VADD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("VADD_LOG_FORMAT", cfg.Log.Format)

	if v := os.Getenv("VADD_DEVICE_TYPE"); v != "" {
		t, err := device.ParseType(v)
		if err != nil {
			return fmt.Errorf("VADD_DEVICE_TYPE: %w", err)
		}
		cfg.Dispatch.DeviceType = t
	}
	if v := os.Getenv("VADD_WORK_GROUP_SIZE"); v != "" {
		w, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VADD_WORK_GROUP_SIZE: %q is not an integer", v)
		}
		cfg.Dispatch.WorkGroupSize = w
	}
	return nil
}

// Validate checks the dispatch and log settings
func (c *Config) Validate() error {
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if _, err := utils.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

// String renders the configuration as YAML
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}

// FindConfigFile returns VADD_CONFIG when set, otherwise the first of
// ./vadd.yaml and $HOME/.config/vadd/config.yaml that exists, or "" when
// there is none
func FindConfigFile() string {
	if p := os.Getenv("VADD_CONFIG"); p != "" {
		return p
	}
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "vadd", "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
