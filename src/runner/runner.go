// Package runner executes the ordered plugin list of a single build stage.
package runner

import (
	"context"
	"fmt"

	"cadence-ci/src/contracts"
	"cadence-ci/src/plugin"
)

// StageRunner runs every plugin configured for a stage, in order. A failing
// plugin marks the stage failed but never stops the plugins after it; only
// the stage's aggregate result is reported back to the caller.
type StageRunner struct{}

// New returns a StageRunner.
func New() *StageRunner {
	return &StageRunner{}
}

// RunStage executes the plugins for the named stage against the given build
// context and reports whether all of them succeeded. A plugin that cannot be
// constructed, returns an error, panics, or reports false counts as a
// failure; its siblings still run.
func (r *StageRunner) RunStage(ctx context.Context, stage string, plugins []plugin.Resolved, buildContext *plugin.Context) bool {
	if len(plugins) == 0 {
		return true
	}

	buildContext.Log.Info("Running stage %s (%d plugins)", stage, len(plugins))

	succeeded := true
	for _, resolved := range plugins {
		if !r.runPlugin(ctx, stage, resolved, buildContext) {
			succeeded = false
		}
	}

	if succeeded {
		buildContext.Log.Info("Stage %s succeeded", stage)
	} else {
		buildContext.Log.Error("Stage %s failed", stage)
	}
	return succeeded
}

func (r *StageRunner) runPlugin(ctx context.Context, stage string, resolved plugin.Resolved, buildContext *plugin.Context) (ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			buildContext.Log.Error("Plugin %s panicked: %v", resolved.Name, recovered)
			buildContext.Errors.Record(resolved.Name, contracts.SeverityCritical,
				fmt.Sprintf("plugin panicked: %v", recovered), "", 0)
			ok = false
		}
	}()

	buildContext.Log.Info("Running plugin %s in stage %s", resolved.Name, stage)

	instance, err := resolved.Factory(buildContext, resolved.Options)
	if err != nil {
		buildContext.Log.Error("Plugin %s could not be configured: %v", resolved.Name, err)
		buildContext.Errors.Record(resolved.Name, contracts.SeverityCritical, err.Error(), "", 0)
		return false
	}

	succeeded, err := instance.Execute(ctx)
	if err != nil {
		buildContext.Log.Error("Plugin %s failed: %v", resolved.Name, err)
		buildContext.Errors.Record(resolved.Name, contracts.SeverityHigh, err.Error(), "", 0)
		return false
	}
	if !succeeded {
		buildContext.Log.Error("Plugin %s reported failure", resolved.Name)
		return false
	}

	buildContext.Log.Info("Plugin %s finished", resolved.Name)
	return true
}
