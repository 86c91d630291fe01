package builder

import (
	"context"
	"fmt"
	"time"

	"cadence-ci/src/buildcfg"
	"cadence-ci/src/contracts"
	"cadence-ci/src/logger"
	"cadence-ci/src/plugin"
	"cadence-ci/src/postback"
	"cadence-ci/src/runner"
	"cadence-ci/src/store"
	"cadence-ci/src/trend"
)

// Builder executes one build to completion: it owns the status state machine,
// the working directory, and the stage sequence. One Builder instance runs
// one build at a time; concurrent builds use independent instances.
type Builder struct {
	store      store.Store
	log        logger.Logger
	runner     *runner.StageRunner
	registry   *plugin.Registry
	notifier   postback.Notifier
	trend      *trend.Tracker
	workspaces *Workspaces

	// workingCopyFor is swappable in tests.
	workingCopyFor func(contracts.ProjectType) WorkingCopy
}

func New(s store.Store, workspaces *Workspaces, notifier postback.Notifier, log logger.Logger) *Builder {
	return &Builder{
		store:          s,
		log:            log,
		runner:         runner.New(),
		registry:       plugin.DefaultRegistry,
		notifier:       notifier,
		trend:          trend.New(s),
		workspaces:     workspaces,
		workingCopyFor: WorkingCopyFor,
	}
}

// Execute runs the full pipeline for a build. Stage and plugin failures are
// absorbed into the build's final status; the returned error covers only
// infrastructure faults such as the build record being unloadable.
func (b *Builder) Execute(ctx context.Context, buildID int64) error {
	build, err := b.store.GetBuild(ctx, buildID)
	if err != nil {
		return fmt.Errorf("loading build: %w", err)
	}
	project, err := b.store.GetProject(ctx, build.ProjectID)
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	startedAt := time.Now()
	build.Status = contracts.StatusRunning
	build.StartedAt = &startedAt
	if err := b.store.SaveBuild(ctx, build); err != nil {
		return fmt.Errorf("marking build running: %w", err)
	}
	b.sendPostback(ctx, build, project)

	// The previous build's final status drives fixed/broken detection
	// after the verdict. No history means pending.
	previousStatus := contracts.StatusPending
	if previous, err := b.store.PreviousBuild(ctx, build.ProjectID, build.Branch, build.ID); err != nil {
		b.log.Error("Build %d: previous build lookup failed: %v", build.ID, err)
	} else if previous != nil {
		previousStatus = previous.Status
	}

	buildLog := NewBuildLogger(b.log)
	errorWriter := NewErrorWriter(b.store, build.ID)
	buildContext := &plugin.Context{
		Build:   build,
		Project: project,
		Log:     buildLog,
		Errors:  errorWriter,
	}

	stages, success := b.runCoreStages(ctx, buildContext)

	if success {
		build.Status = contracts.StatusSuccess
	} else {
		build.Status = contracts.StatusFailed
	}
	if err := b.store.SaveBuild(ctx, build); err != nil {
		b.log.Error("Build %d: saving verdict failed: %v", build.ID, err)
	}

	// Outcome stages run after the verdict and can never change it.
	if success {
		b.runOutcomeStage(ctx, contracts.StageSuccess, stages, buildContext)
		if previousStatus == contracts.StatusFailed {
			b.runOutcomeStage(ctx, contracts.StageFixed, stages, buildContext)
		}
	} else {
		b.runOutcomeStage(ctx, contracts.StageFailure, stages, buildContext)
		if previousStatus == contracts.StatusSuccess || previousStatus == contracts.StatusPending {
			b.runOutcomeStage(ctx, contracts.StageBroken, stages, buildContext)
		}
	}

	// First flush, so completion-stage plugins can query final
	// diagnostics from the store.
	if err := errorWriter.Flush(ctx); err != nil {
		buildLog.Error("Flushing build errors failed: %v", err)
	}

	b.runOutcomeStage(ctx, contracts.StageComplete, stages, buildContext)

	finishedAt := time.Now()
	build.FinishedAt = &finishedAt
	b.sendPostback(ctx, build, project)

	if err := b.workspaces.Cleanup(build.ID); err != nil {
		buildLog.Error("Removing working directory failed: %v", err)
	}

	// Second flush covers errors emitted by completion-stage plugins.
	if err := errorWriter.Flush(ctx); err != nil {
		buildLog.Error("Flushing build errors failed: %v", err)
	}

	if err := b.trend.Compute(ctx, build); err != nil {
		buildLog.Error("Computing error trend failed: %v", err)
	}

	build.Log = buildLog.Contents()
	if err := b.store.SaveBuild(ctx, build); err != nil {
		return fmt.Errorf("persisting final build state: %w", err)
	}

	b.log.Info("Build %d finished: %s", build.ID, build.Status)
	return nil
}

// runCoreStages materializes the working copy, loads the stage configuration,
// and runs the core stage sequence, stopping at the first failing stage. Any
// fault in here forces a failed verdict without escaping.
func (b *Builder) runCoreStages(ctx context.Context, buildContext *plugin.Context) (stages map[string][]plugin.Resolved, success bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			buildContext.Log.Error("Build aborted by fault: %v", recovered)
			success = false
		}
	}()

	dir, err := b.workspaces.Create(buildContext.Build.ID)
	if err != nil {
		buildContext.Log.Error("Creating working directory failed: %v", err)
		return nil, false
	}
	buildContext.WorkDir = dir
	buildContext.Commands = NewShellRunner(dir, buildContext.Log)

	workingCopy := b.workingCopyFor(buildContext.Project.Type)
	if err := workingCopy.Prepare(ctx, buildContext); err != nil {
		buildContext.Log.Error("Working copy setup failed: %v", err)
		buildContext.Errors.Record("setup", contracts.SeverityCritical, err.Error(), "", 0)
		return nil, false
	}

	config, err := buildcfg.Load(dir)
	if err != nil {
		buildContext.Log.Error("Loading build configuration failed: %v", err)
		buildContext.Errors.Record("setup", contracts.SeverityCritical, err.Error(), "", 0)
		return nil, false
	}
	buildContext.Verbose = config.Settings.Verbose
	buildContext.Ignore = config.Settings.Ignore

	stages, err = config.Resolve(b.registry)
	if err != nil {
		buildContext.Log.Error("Resolving plugins failed: %v", err)
		buildContext.Errors.Record("setup", contracts.SeverityCritical, err.Error(), "", 0)
		return nil, false
	}

	for _, stage := range contracts.CoreStages {
		if !b.runner.RunStage(ctx, stage, stages[stage], buildContext) {
			return stages, false
		}
	}
	return stages, true
}

// runOutcomeStage runs one post-verdict stage best-effort: failures and
// faults are logged and swallowed so they cannot flip the decided status or
// abort the remaining cleanup.
func (b *Builder) runOutcomeStage(ctx context.Context, stage string, stages map[string][]plugin.Resolved, buildContext *plugin.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			buildContext.Log.Error("Stage %s aborted by fault: %v", stage, recovered)
		}
	}()

	b.runner.RunStage(ctx, stage, stages[stage], buildContext)
}

func (b *Builder) sendPostback(ctx context.Context, build *contracts.Build, project *contracts.Project) {
	if err := b.notifier.Send(ctx, build, project); err != nil {
		b.log.Error("Build %d: status postback failed: %v", build.ID, err)
	}
}
