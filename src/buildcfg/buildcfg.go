// Package buildcfg loads the per-project build file (.cadence.yml) from a
// build's working copy: general build settings plus the ordered plugin list
// for each stage.
package buildcfg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cadence-ci/src/contracts"
	"cadence-ci/src/plugin"
)

// FileName is the build file looked up at the root of a working copy.
const FileName = ".cadence.yml"

// Settings holds the build_settings section of the build file.
type Settings struct {
	// Verbose enables command output logging during the build.
	Verbose bool `yaml:"verbose"`
	// Ignore lists paths plugins should skip.
	Ignore []string `yaml:"ignore"`
}

// stageEntry is one plugin entry in a stage list. All keys other than
// "plugin" are collected into the plugin's option map and passed through
// unvalidated.
type stageEntry struct {
	Plugin  string                 `yaml:"plugin"`
	Options map[string]interface{} `yaml:",inline"`
}

// file is the raw YAML shape of the build file.
type file struct {
	BuildSettings Settings     `yaml:"build_settings"`
	Setup         []stageEntry `yaml:"setup"`
	Test          []stageEntry `yaml:"test"`
	Deploy        []stageEntry `yaml:"deploy"`
	Success       []stageEntry `yaml:"success"`
	Failure       []stageEntry `yaml:"failure"`
	Fixed         []stageEntry `yaml:"fixed"`
	Broken        []stageEntry `yaml:"broken"`
	Complete      []stageEntry `yaml:"complete"`
}

// Config is a parsed build file.
type Config struct {
	Settings Settings
	stages   map[string][]plugin.Config
}

// Load reads and parses the build file from a working copy directory.
// A missing build file is not an error: it yields an empty configuration,
// and a build with no configured plugins succeeds.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if os.IsNotExist(err) {
		return &Config{stages: make(map[string][]plugin.Config)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	return Parse(data)
}

// Parse parses build file content.
func Parse(data []byte) (*Config, error) {
	var parsed file
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}

	cfg := &Config{
		Settings: parsed.BuildSettings,
		stages:   make(map[string][]plugin.Config),
	}

	for stage, entries := range map[string][]stageEntry{
		contracts.StageSetup:    parsed.Setup,
		contracts.StageTest:     parsed.Test,
		contracts.StageDeploy:   parsed.Deploy,
		contracts.StageSuccess:  parsed.Success,
		contracts.StageFailure:  parsed.Failure,
		contracts.StageFixed:    parsed.Fixed,
		contracts.StageBroken:   parsed.Broken,
		contracts.StageComplete: parsed.Complete,
	} {
		for _, entry := range entries {
			if entry.Plugin == "" {
				return nil, fmt.Errorf("stage %s has an entry without a plugin name", stage)
			}
			cfg.stages[stage] = append(cfg.stages[stage], plugin.Config{
				Name:    entry.Plugin,
				Options: plugin.Options(entry.Options),
			})
		}
	}
	return cfg, nil
}

// Stage returns the ordered plugin configs for a stage. Unconfigured stages
// return an empty list.
func (c *Config) Stage(name string) []plugin.Config {
	return c.stages[name]
}

// Resolve binds every configured stage's plugin list against the registry.
// An unknown plugin name anywhere in the file fails resolution, before any
// stage runs.
func (c *Config) Resolve(registry *plugin.Registry) (map[string][]plugin.Resolved, error) {
	resolved := make(map[string][]plugin.Resolved, len(c.stages))
	for stage, configs := range c.stages {
		plugins, err := registry.Resolve(configs)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage, err)
		}
		resolved[stage] = plugins
	}
	return resolved, nil
}
