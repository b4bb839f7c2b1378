package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Config holds all configurable clitutor settings.
type Config struct {
	LessonsDir    string `json:"lessons_dir"`    // directory of lesson markdown + metadata.json
	DefaultLesson string `json:"default_lesson"` // lesson id to boot into when none is named
	SandboxRoot   string `json:"sandbox_root"`   // override of the real-host root a PTYSession uses
	ShellPath     string `json:"shell_path"`     // override of the shell binary ("bash")
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		LessonsDir:  "lessons",
		SandboxRoot: "",
		ShellPath:   "bash",
	}
}

// LoadGlobal reads ~/.config/clitutor/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "clitutor", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .clitutorconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".clitutorconfig", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking
// precedence, then resolves the merged SandboxRoot/ShellPath against the
// host environment. Missing keys fall back to global, then defaults.
func Merge(global, project *Config) (Config, error) {
	result := mergeValues(global, project)
	if err := result.resolveHostPaths(); err != nil {
		return Config{}, err
	}
	return result, nil
}

// mergeValues applies precedence (project > global > defaults) with no
// host validation, so callers that only care about the overlay rule (the
// config package's own tests included) don't need a real shell on PATH.
func mergeValues(global, project *Config) Config {
	result := Defaults()

	if global != nil {
		applyNonEmpty(&result, global)
	}
	if project != nil {
		applyNonEmpty(&result, project)
	}

	return result
}

// resolveHostPaths validates the two fields that name things on the host
// rather than inside a config file: SandboxRoot, if set, stands in for
// the real filesystem a PTYSession boots against, so a relative path
// would silently resolve against whatever directory the CLI happens to be
// invoked from — reject it instead of guessing. ShellPath is resolved to
// an absolute executable via the same PATH lookup the shell itself would
// do, so a typo or missing binary fails at config-merge time instead of
// inside the sandbox.
func (c *Config) resolveHostPaths() error {
	if c.SandboxRoot != "" && !filepath.IsAbs(c.SandboxRoot) {
		return fmt.Errorf("config: sandbox_root must be an absolute path, got %q", c.SandboxRoot)
	}
	resolved, err := exec.LookPath(c.ShellPath)
	if err != nil {
		return fmt.Errorf("config: shell_path %q not found on PATH: %w", c.ShellPath, err)
	}
	c.ShellPath = resolved
	return nil
}

func applyNonEmpty(result *Config, overlay *Config) {
	if overlay.LessonsDir != "" {
		result.LessonsDir = overlay.LessonsDir
	}
	if overlay.DefaultLesson != "" {
		result.DefaultLesson = overlay.DefaultLesson
	}
	if overlay.SandboxRoot != "" {
		result.SandboxRoot = overlay.SandboxRoot
	}
	if overlay.ShellPath != "" {
		result.ShellPath = overlay.ShellPath
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
