// Package config loads project/global YAML defaults that feed
// TaskRequest construction, matching the teacher's internal/config
// struct-tag-per-section style generalized to this runtime's single
// RunnerDefaults section.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ayshptk/agentrunner/internal/runner"
)

// RunnerDefaults holds per-backend defaults consulted when constructing a
// TaskRequest. Loaded from an optional YAML file; an absent file yields
// the zero value, not an error.
type RunnerDefaults struct {
	DefaultBackend     string                       `yaml:"default_backend"`
	DefaultModel       string                       `yaml:"default_model"`
	DefaultPermission  string                       `yaml:"default_permission_mode"`
	BinaryOverrides    map[string]string            `yaml:"binary_overrides"`
	ExtraArgs          map[string][]string          `yaml:"extra_args"`
	ExtraEnv           map[string]map[string]string `yaml:"extra_env"`
}

// Load reads RunnerDefaults from path. A missing file is not an error and
// returns the zero value.
func Load(path string) (RunnerDefaults, error) {
	var defaults RunnerDefaults
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, err
	}
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, err
	}
	return defaults, nil
}

// Discover looks for ./.agentrunner.yaml then $HOME/.config/agentrunner/config.yaml,
// returning the first path that exists, or "" if neither does.
func Discover() string {
	if _, err := os.Stat(".agentrunner.yaml"); err == nil {
		return ".agentrunner.yaml"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	global := filepath.Join(home, ".config", "agentrunner", "config.yaml")
	if _, err := os.Stat(global); err == nil {
		return global
	}
	return ""
}

// Builder accumulates RunnerDefaults into TaskRequest fields, avoiding
// repeated backend-specific boilerplate at call sites. It never mutates a
// TaskRequest already handed to the core; it only helps construct one.
type Builder struct {
	defaults RunnerDefaults
}

func NewBuilder(defaults RunnerDefaults) *Builder {
	return &Builder{defaults: defaults}
}

// Apply fills backend-specific defaults (binary override, extra args,
// extra env) onto req for the given backend, only where req left the
// field at its zero value.
func (b *Builder) Apply(backendID string, req *runner.TaskRequest) {
	if req.BinaryPathOverride == "" {
		if override, ok := b.defaults.BinaryOverrides[backendID]; ok {
			req.BinaryPathOverride = override
		}
	}
	if len(req.ExtraArgs) == 0 {
		if extra, ok := b.defaults.ExtraArgs[backendID]; ok {
			req.ExtraArgs = extra
		}
	}
	if len(req.ExtraEnv) == 0 {
		if extra, ok := b.defaults.ExtraEnv[backendID]; ok {
			req.ExtraEnv = extra
		}
	}
	if req.Model == "" && b.defaults.DefaultModel != "" {
		req.Model = b.defaults.DefaultModel
	}
}

// DefaultBackendOr returns the configured default backend, or fallback if
// none was configured.
func (b *Builder) DefaultBackendOr(fallback string) string {
	if b.defaults.DefaultBackend != "" {
		return b.defaults.DefaultBackend
	}
	return fallback
}
