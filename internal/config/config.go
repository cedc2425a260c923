// Package config loads td configuration from JSONC files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DataDir string `json:"data_dir"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory
	DataDirAbs   string `json:"-"` // Absolute path to the data directory

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Config errors.
var (
	ErrFileNotFound = errors.New("config file not found")
	ErrInvalid      = errors.New("invalid config file")
	ErrDataDirEmpty = errors.New("data_dir cannot be empty")
)

// FileName is the default project config file name.
const FileName = ".td.json"

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataDir: ".tasks",
	}
}

// globalPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/td/config.json if set, otherwise
// ~/.config/td/config.json. Empty if neither can be determined.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "td", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "td", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DataDirOverride string            // --data-dir flag value; empty means no override
	Env             map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
// defaults, global user config, project config (.td.json), explicit config
// file via ConfigPath, CLI overrides. All paths in the returned Config are
// resolved to absolute paths.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	globalCfg, globalFile, globalErr := loadOptional(globalPath(input.Env))
	if globalErr != nil {
		return Config{}, globalErr
	}

	cfg.Sources.Global = globalFile
	cfg = merge(cfg, globalCfg)

	projectCfg, projectFile, projectErr := loadProject(workDir, input.ConfigPath)
	if projectErr != nil {
		return Config{}, projectErr
	}

	cfg.Sources.Project = projectFile
	cfg = merge(cfg, projectCfg)

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	if cfg.DataDir == "" {
		return Config{}, ErrDataDirEmpty
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = cfg.DataDir
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}

	return cfg, nil
}

// loadProject loads the project config file (.td.json) or an explicit
// config file, which must exist.
func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		return loadOptional(filepath.Join(workDir, FileName))
	}

	cfgFile := configPath
	if !filepath.IsAbs(cfgFile) {
		cfgFile = filepath.Join(workDir, cfgFile)
	}

	data, readErr := os.ReadFile(cfgFile)
	if readErr != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrFileNotFound, configPath)
	}

	cfg, parseErr := parse(data)
	if parseErr != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrInvalid, cfgFile, parseErr)
	}

	return cfg, cfgFile, nil
}

// loadOptional loads a config file that may be absent.
func loadOptional(path string) (Config, string, error) {
	if path == "" {
		return Config{}, "", nil
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return Config{}, "", nil
	}

	cfg, parseErr := parse(data)
	if parseErr != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrInvalid, path, parseErr)
	}

	return cfg, path, nil
}

func parse(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	// An explicitly empty data_dir is a configuration mistake, not a
	// request for the default.
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if val, exists := raw["data_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			return Config{}, ErrDataDirEmpty
		}
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	return base
}
