// Package plugin defines the contract every pluggable unit of work
// implements, and the registry that maps configured plugin names to
// factories.
package plugin

import (
	"context"

	"cadence-ci/src/contracts"
	"cadence-ci/src/logger"
)

// Options is the option map a plugin is configured with. Plugins read the
// keys they understand and ignore the rest; the runner never validates
// options.
type Options map[string]interface{}

// String returns the string value for key, or fallback when the key is
// missing or not a string.
func (o Options) String(key, fallback string) string {
	if value, ok := o[key].(string); ok {
		return value
	}
	return fallback
}

// Strings returns the string-list value for key. A single string value is
// returned as a one-element list.
func (o Options) Strings(key string) []string {
	switch value := o[key].(type) {
	case string:
		return []string{value}
	case []interface{}:
		var result []string
		for _, item := range value {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}

// Int returns the integer value for key, or fallback when the key is
// missing or not an integer.
func (o Options) Int(key string, fallback int) int {
	if value, ok := o[key].(int); ok {
		return value
	}
	return fallback
}

// ErrorSink receives structured diagnostics emitted by plugins during a
// stage. The builder buffers them and flushes at defined points so
// completion-stage plugins can query final diagnostics.
type ErrorSink interface {
	Record(plugin string, severity contracts.Severity, message, file string, line int)
}

// CommandRunner executes shell commands inside the build's working
// directory. Implemented by the builder's command executor.
type CommandRunner interface {
	// Run executes a command and returns its exit code. A non-nil error
	// means the command could not be run at all (as opposed to running
	// and exiting non-zero).
	Run(ctx context.Context, command string, env map[string]string) (int, error)

	// LastOutput returns the combined output of the last command run.
	LastOutput() string
}

// Context carries the per-build state a plugin needs: the build and project
// records, the working directory, logging, the error sink, and command
// execution.
type Context struct {
	Build    *contracts.Build
	Project  *contracts.Project
	WorkDir  string
	Log      logger.Logger
	Errors   ErrorSink
	Commands CommandRunner

	// Verbose and Ignore come from the build file's settings block.
	// Verbose asks plugins for extra log output; Ignore lists paths
	// analysis plugins should skip.
	Verbose bool
	Ignore  []string
}

// Plugin is a single unit of work in a build stage. Execute returns whether
// the plugin succeeded; a non-nil error is treated by the runner as a
// failure for this plugin without stopping its siblings.
type Plugin interface {
	Execute(ctx context.Context) (bool, error)
}

// Factory builds a plugin bound to a build context and its options.
type Factory func(buildContext *Context, options Options) (Plugin, error)

// Config is one plugin entry in a stage's ordered list, as configured in
// the project's build file.
type Config struct {
	Name    string
	Options Options
}

// Resolved is a Config bound to its factory. Resolution happens when the
// build file is loaded so unknown plugin names fail fast, before any stage
// runs.
type Resolved struct {
	Name    string
	Options Options
	Factory Factory
}
