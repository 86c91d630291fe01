package builder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cadence-ci/src/buildcfg"
	"cadence-ci/src/contracts"
	"cadence-ci/src/logger"
	"cadence-ci/src/plugin"
	"cadence-ci/src/postback"
	"cadence-ci/src/store"
)

// probeRecorder collects which stages ran, via probe plugins configured one
// per stage in the build file.
type probeRecorder struct {
	mu     sync.Mutex
	stages []string
	fail   map[string]bool
}

func newProbeRecorder(failStages ...string) *probeRecorder {
	fail := make(map[string]bool)
	for _, stage := range failStages {
		fail[stage] = true
	}
	return &probeRecorder{fail: fail}
}

func (p *probeRecorder) record(stage string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, stage)
	return !p.fail[stage]
}

func (p *probeRecorder) ran() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stages...)
}

type probePlugin struct {
	recorder *probeRecorder
	stage    string
}

func (p *probePlugin) Execute(ctx context.Context) (bool, error) {
	return p.recorder.record(p.stage), nil
}

// probeBuildFile configures one probe plugin in every stage, each tagged
// with its stage name.
const probeBuildFile = `
setup:
  - plugin: probe
    stage: setup
test:
  - plugin: probe
    stage: test
deploy:
  - plugin: probe
    stage: deploy
success:
  - plugin: probe
    stage: success
failure:
  - plugin: probe
    stage: failure
fixed:
  - plugin: probe
    stage: fixed
broken:
  - plugin: probe
    stage: broken
complete:
  - plugin: probe
    stage: complete
`

// fileWorkingCopy writes fixed files into the working directory instead of
// cloning anything.
type fileWorkingCopy struct {
	files map[string]string
	err   error
}

func (f *fileWorkingCopy) Prepare(ctx context.Context, buildContext *plugin.Context) error {
	if f.err != nil {
		return f.err
	}
	for name, content := range f.files {
		if err := os.WriteFile(filepath.Join(buildContext.WorkDir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type builderFixture struct {
	builder  *Builder
	store    *store.MemoryStore
	recorder *probeRecorder
}

func newBuilderFixture(t *testing.T, recorder *probeRecorder, copy WorkingCopy) *builderFixture {
	t.Helper()

	s := store.NewMemoryStore()
	b := New(s, NewWorkspaces(t.TempDir(), false), postback.Noop{}, &logger.SilentLogger{})

	registry := plugin.NewRegistry()
	registry.Register("probe", func(buildContext *plugin.Context, options plugin.Options) (plugin.Plugin, error) {
		return &probePlugin{recorder: recorder, stage: options.String("stage", "")}, nil
	})
	b.registry = registry
	b.workingCopyFor = func(contracts.ProjectType) WorkingCopy { return copy }

	return &builderFixture{builder: b, store: s, recorder: recorder}
}

func (f *builderFixture) createProject(t *testing.T) *contracts.Project {
	t.Helper()
	project := &contracts.Project{Title: "widget", Type: contracts.ProjectTypeGit, DefaultBranch: "master"}
	if err := f.store.SaveProject(context.Background(), project); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}
	return project
}

func (f *builderFixture) createBuild(t *testing.T, projectID int64, status contracts.Status) *contracts.Build {
	t.Helper()
	build := &contracts.Build{
		ProjectID: projectID,
		CommitID:  "abc123",
		Branch:    "master",
		Status:    status,
		Source:    contracts.SourceManual,
	}
	if err := f.store.CreateBuild(context.Background(), build); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}
	return build
}

func contains(stages []string, stage string) bool {
	for _, s := range stages {
		if s == stage {
			return true
		}
	}
	return false
}

func TestExecute_AllStagesPass(t *testing.T) {
	recorder := newProbeRecorder()
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: map[string]string{buildcfg.FileName: probeBuildFile}})
	project := fixture.createProject(t)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, err := fixture.store.GetBuild(context.Background(), build.ID)
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if stored.Status != contracts.StatusSuccess {
		t.Errorf("Expected success, got %s", stored.Status)
	}
	if stored.StartedAt == nil || stored.FinishedAt == nil {
		t.Error("Expected start and finish timestamps to be set")
	}
	if stored.Log == "" {
		t.Error("Expected build log to be captured")
	}

	want := []string{contracts.StageSetup, contracts.StageTest, contracts.StageDeploy, contracts.StageSuccess, contracts.StageComplete}
	got := recorder.ran()
	if len(got) != len(want) {
		t.Fatalf("Expected stages %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected stages %v, got %v", want, got)
		}
	}
}

func TestExecute_StageSequenceShortCircuits(t *testing.T) {
	recorder := newProbeRecorder(contracts.StageTest)
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: map[string]string{buildcfg.FileName: probeBuildFile}})
	project := fixture.createProject(t)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got := recorder.ran()
	if contains(got, contracts.StageDeploy) {
		t.Errorf("Deploy must not run after test failure, ran %v", got)
	}
	if !contains(got, contracts.StageFailure) || !contains(got, contracts.StageComplete) {
		t.Errorf("Failure and complete stages must still run, ran %v", got)
	}

	stored, _ := fixture.store.GetBuild(context.Background(), build.ID)
	if stored.Status != contracts.StatusFailed {
		t.Errorf("Expected failed, got %s", stored.Status)
	}
}

func TestExecute_FixedAfterPreviousFailure(t *testing.T) {
	recorder := newProbeRecorder()
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: map[string]string{buildcfg.FileName: probeBuildFile}})
	project := fixture.createProject(t)
	fixture.createBuild(t, project.ID, contracts.StatusFailed)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got := recorder.ran()
	if !contains(got, contracts.StageSuccess) || !contains(got, contracts.StageFixed) {
		t.Errorf("Expected success and fixed stages, ran %v", got)
	}
	if contains(got, contracts.StageFailure) || contains(got, contracts.StageBroken) {
		t.Errorf("Failure stages must not run on success, ran %v", got)
	}
}

func TestExecute_BrokenAfterPreviousSuccess(t *testing.T) {
	recorder := newProbeRecorder(contracts.StageSetup)
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: map[string]string{buildcfg.FileName: probeBuildFile}})
	project := fixture.createProject(t)
	fixture.createBuild(t, project.ID, contracts.StatusSuccess)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got := recorder.ran()
	if !contains(got, contracts.StageFailure) || !contains(got, contracts.StageBroken) {
		t.Errorf("Expected failure and broken stages, ran %v", got)
	}
	if contains(got, contracts.StageSuccess) || contains(got, contracts.StageFixed) {
		t.Errorf("Success stages must not run on failure, ran %v", got)
	}
}

func TestExecute_NoBrokenAfterRepeatedFailure(t *testing.T) {
	recorder := newProbeRecorder(contracts.StageTest)
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: map[string]string{buildcfg.FileName: probeBuildFile}})
	project := fixture.createProject(t)
	fixture.createBuild(t, project.ID, contracts.StatusFailed)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got := recorder.ran()
	if !contains(got, contracts.StageFailure) {
		t.Errorf("Expected failure stage, ran %v", got)
	}
	if contains(got, contracts.StageBroken) {
		t.Errorf("Broken must not run after a repeated failure, ran %v", got)
	}
}

func TestExecute_BrokenAfterNoHistory(t *testing.T) {
	recorder := newProbeRecorder(contracts.StageTest)
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: map[string]string{buildcfg.FileName: probeBuildFile}})
	project := fixture.createProject(t)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !contains(recorder.ran(), contracts.StageBroken) {
		t.Errorf("A first-ever failure counts as broken, ran %v", recorder.ran())
	}
}

func TestExecute_WorkingCopyFailureIsFatal(t *testing.T) {
	recorder := newProbeRecorder()
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{err: os.ErrPermission})
	project := fixture.createProject(t)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, _ := fixture.store.GetBuild(context.Background(), build.ID)
	if stored.Status != contracts.StatusFailed {
		t.Errorf("Expected failed after setup fault, got %s", stored.Status)
	}
	if len(recorder.ran()) != 0 {
		t.Errorf("No configured stages should run without a working copy, ran %v", recorder.ran())
	}

	errs, err := fixture.store.BuildErrorsByBuild(context.Background(), build.ID)
	if err != nil {
		t.Fatalf("BuildErrorsByBuild failed: %v", err)
	}
	if len(errs) != 1 || errs[0].Severity != contracts.SeverityCritical {
		t.Errorf("Expected one critical setup error, got %v", errs)
	}
}

func TestExecute_MissingBuildFileSucceeds(t *testing.T) {
	recorder := newProbeRecorder()
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{})
	project := fixture.createProject(t)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, _ := fixture.store.GetBuild(context.Background(), build.ID)
	if stored.Status != contracts.StatusSuccess {
		t.Errorf("A project without a build file should pass, got %s", stored.Status)
	}
}

func TestExecute_UnknownPluginFailsBuild(t *testing.T) {
	recorder := newProbeRecorder()
	files := map[string]string{buildcfg.FileName: "test:\n  - plugin: no-such-plugin\n"}
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: files})
	project := fixture.createProject(t)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, _ := fixture.store.GetBuild(context.Background(), build.ID)
	if stored.Status != contracts.StatusFailed {
		t.Errorf("Expected failed on unresolvable plugin, got %s", stored.Status)
	}
}

func TestExecute_ErrorTrendComputed(t *testing.T) {
	recorder := newProbeRecorder()
	fixture := newBuilderFixture(t, recorder, &fileWorkingCopy{files: map[string]string{buildcfg.FileName: probeBuildFile}})
	project := fixture.createProject(t)
	build := fixture.createBuild(t, project.ID, contracts.StatusPending)

	if err := fixture.builder.Execute(context.Background(), build.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stored, _ := fixture.store.GetBuild(context.Background(), build.ID)
	if stored.ErrorsTotal == nil || *stored.ErrorsTotal != 0 {
		t.Errorf("Expected zero current errors, got %v", stored.ErrorsTotal)
	}
}
