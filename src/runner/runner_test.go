package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cadence-ci/src/contracts"
	"cadence-ci/src/logger"
	"cadence-ci/src/plugin"
)

type recordingSink struct {
	mu      sync.Mutex
	records []string
}

func (s *recordingSink) Record(pluginName string, severity contracts.Severity, message, file string, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, pluginName+": "+message)
}

type fakePlugin struct {
	execute func(ctx context.Context) (bool, error)
}

func (p *fakePlugin) Execute(ctx context.Context) (bool, error) {
	return p.execute(ctx)
}

func resolvedPlugin(name string, execute func(ctx context.Context) (bool, error)) plugin.Resolved {
	return plugin.Resolved{
		Name: name,
		Factory: func(buildContext *plugin.Context, options plugin.Options) (plugin.Plugin, error) {
			return &fakePlugin{execute: execute}, nil
		},
	}
}

func newBuildContext(sink *recordingSink) *plugin.Context {
	return &plugin.Context{
		Build:   &contracts.Build{ID: 1},
		Project: &contracts.Project{ID: 1},
		Log:     &logger.SilentLogger{},
		Errors:  sink,
	}
}

func TestRunStage_AllPluginsSucceed(t *testing.T) {
	r := New()
	plugins := []plugin.Resolved{
		resolvedPlugin("first", func(ctx context.Context) (bool, error) { return true, nil }),
		resolvedPlugin("second", func(ctx context.Context) (bool, error) { return true, nil }),
	}

	if !r.RunStage(context.Background(), contracts.StageTest, plugins, newBuildContext(&recordingSink{})) {
		t.Error("Expected stage to succeed when every plugin succeeds")
	}
}

func TestRunStage_FailureDoesNotStopSiblings(t *testing.T) {
	r := New()
	var executed []string
	plugins := []plugin.Resolved{
		resolvedPlugin("first", func(ctx context.Context) (bool, error) {
			executed = append(executed, "first")
			return false, nil
		}),
		resolvedPlugin("second", func(ctx context.Context) (bool, error) {
			executed = append(executed, "second")
			return true, nil
		}),
		resolvedPlugin("third", func(ctx context.Context) (bool, error) {
			executed = append(executed, "third")
			return true, nil
		}),
	}

	if r.RunStage(context.Background(), contracts.StageTest, plugins, newBuildContext(&recordingSink{})) {
		t.Error("Expected stage to fail when one plugin fails")
	}
	if len(executed) != 3 {
		t.Errorf("Expected all 3 plugins to execute, got %v", executed)
	}
}

func TestRunStage_ErrorCountsAsFailure(t *testing.T) {
	r := New()
	sink := &recordingSink{}
	plugins := []plugin.Resolved{
		resolvedPlugin("broken", func(ctx context.Context) (bool, error) {
			return true, errors.New("boom")
		}),
	}

	if r.RunStage(context.Background(), contracts.StageTest, plugins, newBuildContext(sink)) {
		t.Error("Expected stage to fail when plugin returns an error")
	}
	if len(sink.records) != 1 {
		t.Errorf("Expected 1 recorded error, got %v", sink.records)
	}
}

func TestRunStage_PanicCountsAsFailure(t *testing.T) {
	r := New()
	sink := &recordingSink{}
	var ranAfter bool
	plugins := []plugin.Resolved{
		resolvedPlugin("panics", func(ctx context.Context) (bool, error) {
			panic("unexpected")
		}),
		resolvedPlugin("after", func(ctx context.Context) (bool, error) {
			ranAfter = true
			return true, nil
		}),
	}

	if r.RunStage(context.Background(), contracts.StageTest, plugins, newBuildContext(sink)) {
		t.Error("Expected stage to fail when a plugin panics")
	}
	if !ranAfter {
		t.Error("Expected plugin after the panicking one to still run")
	}
	if len(sink.records) != 1 {
		t.Errorf("Expected 1 recorded error, got %v", sink.records)
	}
}

func TestRunStage_FactoryErrorCountsAsFailure(t *testing.T) {
	r := New()
	plugins := []plugin.Resolved{
		{
			Name: "misconfigured",
			Factory: func(buildContext *plugin.Context, options plugin.Options) (plugin.Plugin, error) {
				return nil, errors.New("bad options")
			},
		},
	}

	if r.RunStage(context.Background(), contracts.StageTest, plugins, newBuildContext(&recordingSink{})) {
		t.Error("Expected stage to fail when plugin construction fails")
	}
}

func TestRunStage_EmptyStageSucceeds(t *testing.T) {
	r := New()
	if !r.RunStage(context.Background(), contracts.StageTest, nil, newBuildContext(&recordingSink{})) {
		t.Error("Expected empty stage to succeed")
	}
}
