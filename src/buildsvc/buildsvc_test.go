package buildsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"cadence-ci/src/broker"
	"cadence-ci/src/contracts"
	"cadence-ci/src/logger"
	"cadence-ci/src/store"
)

type fixture struct {
	service *Service
	store   *store.MemoryStore
	broker  *broker.InMemoryBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	b := broker.NewInMemoryBroker()
	t.Cleanup(func() { b.Close() })
	return &fixture{service: New(s, b, &logger.SilentLogger{}), store: s, broker: b}
}

func (f *fixture) createProject(t *testing.T, mutate func(*contracts.Project)) *contracts.Project {
	t.Helper()
	project := &contracts.Project{Title: "widget", Type: contracts.ProjectTypeGit, DefaultBranch: "master"}
	if mutate != nil {
		mutate(project)
	}
	if err := f.store.SaveProject(context.Background(), project); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}
	return project
}

func (f *fixture) createEnvironment(t *testing.T, projectID int64, name string, branches ...string) *contracts.Environment {
	t.Helper()
	env := &contracts.Environment{ProjectID: projectID, Name: name, Branches: branches}
	if err := f.store.SaveEnvironment(context.Background(), env); err != nil {
		t.Fatalf("SaveEnvironment failed: %v", err)
	}
	return env
}

func pushEvent(commit, branch string) *contracts.CanonicalEvent {
	return &contracts.CanonicalEvent{
		Source:    contracts.SourceWebhookPush,
		CommitID:  commit,
		Branch:    branch,
		Committer: "a@x.com",
		Message:   "fix",
	}
}

func TestCreateBuilds_NoEnvironments(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)

	result, err := f.service.CreateBuilds(context.Background(), project.ID, pushEvent("abc123", "main"))
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("Expected ok, got %s (%s)", result.Status, result.Message)
	}
	if len(result.BuildIDs) != 1 {
		t.Fatalf("Expected one build, got %v", result.BuildIDs)
	}

	build, err := f.store.GetBuild(context.Background(), result.BuildIDs[0])
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if build.EnvironmentID != nil {
		t.Error("Expected build without environment")
	}
	if build.Status != contracts.StatusPending {
		t.Errorf("Expected pending, got %s", build.Status)
	}
	if build.Branch != "main" {
		t.Errorf("Expected branch main, got %s", build.Branch)
	}
}

func TestCreateBuilds_DuplicateCommitIgnored(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	ctx := context.Background()

	first, err := f.service.CreateBuilds(ctx, project.ID, pushEvent("abc123", "main"))
	if err != nil {
		t.Fatalf("First CreateBuilds failed: %v", err)
	}
	second, err := f.service.CreateBuilds(ctx, project.ID, pushEvent("abc123", "main"))
	if err != nil {
		t.Fatalf("Second CreateBuilds failed: %v", err)
	}

	if first.Status != StatusOK || second.Status != StatusIgnored {
		t.Errorf("Expected ok then ignored, got %s then %s", first.Status, second.Status)
	}
	builds, _ := f.store.BuildsByProjectAndCommit(ctx, project.ID, "abc123")
	if len(builds) != 1 {
		t.Errorf("Expected exactly one build total, got %d", len(builds))
	}
}

func TestCreateBuilds_NewTagDefeatsDedup(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	ctx := context.Background()

	if _, err := f.service.CreateBuilds(ctx, project.ID, pushEvent("abc123", "main")); err != nil {
		t.Fatalf("First CreateBuilds failed: %v", err)
	}

	tagged := pushEvent("abc123", "main")
	tagged.Tag = "v1.2.0"
	result, err := f.service.CreateBuilds(ctx, project.ID, tagged)
	if err != nil {
		t.Fatalf("Tagged CreateBuilds failed: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("Expected a new tag to create a build, got %s (%s)", result.Status, result.Message)
	}

	builds, _ := f.store.BuildsByProjectAndCommit(ctx, project.ID, "abc123")
	if len(builds) != 2 {
		t.Errorf("Expected two builds, got %d", len(builds))
	}
}

func TestCreateBuilds_RepeatedTagIgnored(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	ctx := context.Background()

	tagged := pushEvent("abc123", "main")
	tagged.Tag = "v1.2.0"
	if _, err := f.service.CreateBuilds(ctx, project.ID, tagged); err != nil {
		t.Fatalf("First CreateBuilds failed: %v", err)
	}
	result, err := f.service.CreateBuilds(ctx, project.ID, tagged)
	if err != nil {
		t.Fatalf("Second CreateBuilds failed: %v", err)
	}
	if result.Status != StatusIgnored {
		t.Errorf("Expected repeated tag to be ignored, got %s", result.Status)
	}
}

func TestCreateBuilds_ArchivedProject(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, func(p *contracts.Project) { p.Archived = true })

	result, err := f.service.CreateBuilds(context.Background(), project.ID, pushEvent("abc123", "main"))
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}
	if result.Status != StatusFailed || result.ResponseCode != http.StatusNotFound {
		t.Errorf("Expected not-found failure, got %s code %d", result.Status, result.ResponseCode)
	}
	builds, _ := f.store.BuildsByProjectAndCommit(context.Background(), project.ID, "abc123")
	if len(builds) != 0 {
		t.Errorf("Expected no builds for archived project, got %d", len(builds))
	}
}

func TestCreateBuilds_MissingProject(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.CreateBuilds(context.Background(), 99, pushEvent("abc123", "main"))
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}
	if result.Status != StatusFailed || result.ResponseCode != http.StatusNotFound {
		t.Errorf("Expected not-found failure, got %s code %d", result.Status, result.ResponseCode)
	}
}

func TestCreateBuilds_DefaultBranchOnly(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, func(p *contracts.Project) { p.DefaultBranchOnly = true })

	result, err := f.service.CreateBuilds(context.Background(), project.ID, pushEvent("abc123", "feature"))
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}
	if result.Status != StatusIgnored {
		t.Errorf("Expected ignored for non-default branch, got %s", result.Status)
	}
}

func TestCreateBuilds_FanOutAcrossEnvironments(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	staging := f.createEnvironment(t, project.ID, "staging", "release")
	qa := f.createEnvironment(t, project.ID, "qa", "release", "hotfix")
	f.createEnvironment(t, project.ID, "production", "master")
	ctx := context.Background()

	result, err := f.service.CreateBuilds(ctx, project.ID, pushEvent("abc123", "release"))
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}
	if result.Status != StatusOK || len(result.BuildIDs) != 2 {
		t.Fatalf("Expected two builds, got %s %v", result.Status, result.BuildIDs)
	}

	envIDs := make(map[int64]bool)
	for _, buildID := range result.BuildIDs {
		build, err := f.store.GetBuild(ctx, buildID)
		if err != nil {
			t.Fatalf("GetBuild failed: %v", err)
		}
		if build.EnvironmentID == nil {
			t.Fatal("Expected environment to be set")
		}
		envIDs[*build.EnvironmentID] = true
		if build.Branch != "master" {
			t.Errorf("Environment builds record against the default branch, got %s", build.Branch)
		}
	}
	if !envIDs[staging.ID] || !envIDs[qa.ID] {
		t.Errorf("Expected builds for staging and qa, got %v", envIDs)
	}
}

func TestCreateBuilds_BranchWithoutEnvironment(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	f.createEnvironment(t, project.ID, "staging", "release")

	result, err := f.service.CreateBuilds(context.Background(), project.ID, pushEvent("abc123", "feature"))
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}
	if result.Status != StatusIgnored {
		t.Errorf("Expected ignored for unmapped branch, got %s", result.Status)
	}
}

func TestCreateBuilds_NamedEnvironment(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	staging := f.createEnvironment(t, project.ID, "staging", "release")
	f.createEnvironment(t, project.ID, "qa", "release")
	ctx := context.Background()

	event := pushEvent("abc123", "release")
	event.Environment = "staging"
	result, err := f.service.CreateBuilds(ctx, project.ID, event)
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}
	if result.Status != StatusOK || len(result.BuildIDs) != 1 {
		t.Fatalf("Expected one build for the named environment, got %s %v", result.Status, result.BuildIDs)
	}

	build, _ := f.store.GetBuild(ctx, result.BuildIDs[0])
	if build.EnvironmentID == nil || *build.EnvironmentID != staging.ID {
		t.Errorf("Expected staging environment, got %v", build.EnvironmentID)
	}
}

func TestCreateBuilds_PerEnvironmentDedup(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	f.createEnvironment(t, project.ID, "staging", "release")
	qa := f.createEnvironment(t, project.ID, "qa", "release")
	ctx := context.Background()

	event := pushEvent("abc123", "release")
	event.Environment = "staging"
	if _, err := f.service.CreateBuilds(ctx, project.ID, event); err != nil {
		t.Fatalf("First CreateBuilds failed: %v", err)
	}

	// The same commit fans out again; staging is a duplicate now, qa is not.
	result, err := f.service.CreateBuilds(ctx, project.ID, pushEvent("abc123", "release"))
	if err != nil {
		t.Fatalf("Second CreateBuilds failed: %v", err)
	}
	if result.Status != StatusOK || len(result.BuildIDs) != 1 {
		t.Fatalf("Expected one new build for qa, got %s %v", result.Status, result.BuildIDs)
	}
	build, _ := f.store.GetBuild(ctx, result.BuildIDs[0])
	if build.EnvironmentID == nil || *build.EnvironmentID != qa.ID {
		t.Errorf("Expected qa environment, got %v", build.EnvironmentID)
	}
	if result.Message == "" {
		t.Error("Expected the skipped duplicate to be noted")
	}
}

func TestCreateBuilds_QueuesBuildRequests(t *testing.T) {
	f := newFixture(t)
	project := f.createProject(t, nil)
	ctx := context.Background()

	messages, err := f.broker.Subscribe(ctx, contracts.TopicBuildsQueued, "test")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	result, err := f.service.CreateBuilds(ctx, project.ID, pushEvent("abc123", "main"))
	if err != nil {
		t.Fatalf("CreateBuilds failed: %v", err)
	}

	select {
	case message := <-messages:
		var request contracts.BuildRequest
		if err := json.Unmarshal(message.Value, &request); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if request.BuildID != result.BuildIDs[0] || request.ProjectID != project.ID {
			t.Errorf("Unexpected build request: %+v", request)
		}
	default:
		t.Fatal("Expected a queued build request")
	}
}
