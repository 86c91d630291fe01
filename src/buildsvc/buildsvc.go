// Package buildsvc creates builds from canonical events: it applies the
// fan-out and duplicate-suppression policy across a project's environments
// and queues every created build for the workers.
package buildsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"cadence-ci/src/broker"
	"cadence-ci/src/contracts"
	"cadence-ci/src/logger"
	"cadence-ci/src/store"
)

// Result status values returned to webhook callers.
const (
	StatusOK      = "ok"
	StatusIgnored = "ignored"
	StatusFailed  = "failed"
)

// Result is the outcome of one build-creation request.
type Result struct {
	Status   string  `json:"status"`
	Message  string  `json:"message,omitempty"`
	BuildIDs []int64 `json:"build_ids,omitempty"`
	// ResponseCode overrides the HTTP status the webhook surface responds
	// with. Zero means the default for the status.
	ResponseCode int `json:"response_code,omitempty"`
}

// Service decides which builds a canonical event produces and creates them.
type Service struct {
	store  store.Store
	broker broker.Broker
	log    logger.Logger
}

func New(s store.Store, b broker.Broker, log logger.Logger) *Service {
	return &Service{store: s, broker: b, log: log}
}

// CreateBuilds applies the fan-out policy for one event against one project.
// The whole check-then-create sequence runs under the store's commit lock so
// concurrent deliveries of the same commit cannot create duplicates. The
// returned error covers only store and broker faults; policy outcomes are
// expressed in the Result.
func (s *Service) CreateBuilds(ctx context.Context, projectID int64, event *contracts.CanonicalEvent) (*Result, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound(projectID), nil
		}
		return nil, fmt.Errorf("loading project: %w", err)
	}
	if project.Archived {
		return notFound(projectID), nil
	}

	var result *Result
	err = s.store.WithCommitLock(ctx, projectID, event.CommitID, func(ctx context.Context) error {
		var lockErr error
		result, lockErr = s.createLocked(ctx, project, event)
		return lockErr
	})
	if err != nil {
		return nil, err
	}

	for _, buildID := range result.BuildIDs {
		if err := s.enqueue(ctx, projectID, buildID); err != nil {
			s.log.Error("Queuing build %d failed: %v", buildID, err)
		}
	}
	return result, nil
}

// CreateForEnvironment creates one build directly against an environment,
// bypassing the fan-out policy. Used when an environment's branch list
// changed and the environment needs a rebuild regardless of commit history.
func (s *Service) CreateForEnvironment(ctx context.Context, project *contracts.Project, environmentID int64, event *contracts.CanonicalEvent) (*contracts.Build, error) {
	build, err := s.create(ctx, project, event, &environmentID, project.DefaultBranch)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, project.ID, build.ID); err != nil {
		s.log.Error("Queuing build %d failed: %v", build.ID, err)
	}
	return build, nil
}

// CreateManual creates one build for a manual trigger, bypassing duplicate
// suppression: re-running a commit by hand is always allowed. environment
// may be empty.
func (s *Service) CreateManual(ctx context.Context, projectID int64, commitID, branch, environment string) (*contracts.Build, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	if project.Archived {
		return nil, fmt.Errorf("project %d is archived", projectID)
	}
	if branch == "" {
		branch = project.DefaultBranch
	}

	var environmentID *int64
	if environment != "" {
		env, err := s.store.EnvironmentByNameAndProject(ctx, environment, projectID)
		if err != nil {
			return nil, fmt.Errorf("resolving environment: %w", err)
		}
		if env == nil {
			return nil, fmt.Errorf("environment %q not found in project %d", environment, projectID)
		}
		environmentID = &env.ID
	}

	event := &contracts.CanonicalEvent{
		Source:   contracts.SourceManual,
		CommitID: commitID,
		Branch:   branch,
	}
	build, err := s.create(ctx, project, event, environmentID, branch)
	if err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, projectID, build.ID); err != nil {
		s.log.Error("Queuing build %d failed: %v", build.ID, err)
	}
	return build, nil
}

func (s *Service) createLocked(ctx context.Context, project *contracts.Project, event *contracts.CanonicalEvent) (*Result, error) {
	if project.DefaultBranchOnly && event.Branch != project.DefaultBranch {
		return &Result{
			Status:  StatusIgnored,
			Message: fmt.Sprintf("only builds on branch %s are allowed", project.DefaultBranch),
		}, nil
	}

	existing, err := s.store.BuildsByProjectAndCommit(ctx, project.ID, event.CommitID)
	if err != nil {
		return nil, fmt.Errorf("loading builds for commit: %w", err)
	}
	seen := seenKeys(existing)

	environments, err := s.store.EnvironmentsByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("loading environments: %w", err)
	}

	if len(environments) == 0 {
		return s.createEnvironmentless(ctx, project, event, seen)
	}

	if event.Environment != "" {
		target, err := s.store.EnvironmentByNameAndProject(ctx, event.Environment, project.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving environment: %w", err)
		}
		if target != nil {
			return s.createForEnvironments(ctx, project, event, seen, []contracts.Environment{*target}, project.DefaultBranch)
		}
	}

	var matched []contracts.Environment
	for _, env := range environments {
		if env.HasBranch(event.Branch) {
			matched = append(matched, env)
		}
	}
	if len(matched) == 0 {
		return &Result{
			Status:  StatusIgnored,
			Message: fmt.Sprintf("branch %s is not assigned to any environment", event.Branch),
		}, nil
	}

	// Environment-mapped builds always record against the project's
	// default branch, not the triggering branch.
	return s.createForEnvironments(ctx, project, event, seen, matched, project.DefaultBranch)
}

func (s *Service) createEnvironmentless(ctx context.Context, project *contracts.Project, event *contracts.CanonicalEvent, seen map[string]bool) (*Result, error) {
	if seen[dedupKey(nil, event.Tag)] {
		return &Result{
			Status:  StatusIgnored,
			Message: fmt.Sprintf("commit %s already built", event.CommitID),
		}, nil
	}

	build, err := s.create(ctx, project, event, nil, event.Branch)
	if err != nil {
		return nil, err
	}
	return &Result{Status: StatusOK, BuildIDs: []int64{build.ID}}, nil
}

func (s *Service) createForEnvironments(ctx context.Context, project *contracts.Project, event *contracts.CanonicalEvent, seen map[string]bool, environments []contracts.Environment, branch string) (*Result, error) {
	var created []int64
	var skipped []string

	for _, env := range environments {
		envID := env.ID
		if seen[dedupKey(&envID, event.Tag)] {
			skipped = append(skipped, env.Name)
			continue
		}
		build, err := s.create(ctx, project, event, &envID, branch)
		if err != nil {
			return nil, err
		}
		created = append(created, build.ID)
	}

	if len(created) == 0 {
		return &Result{
			Status:  StatusIgnored,
			Message: fmt.Sprintf("commit %s already built for environments %v", event.CommitID, skipped),
		}, nil
	}

	result := &Result{Status: StatusOK, BuildIDs: created}
	if len(skipped) > 0 {
		result.Message = fmt.Sprintf("skipped duplicate environments %v", skipped)
	}
	return result, nil
}

func (s *Service) create(ctx context.Context, project *contracts.Project, event *contracts.CanonicalEvent, environmentID *int64, branch string) (*contracts.Build, error) {
	build := &contracts.Build{
		ProjectID:     project.ID,
		EnvironmentID: environmentID,
		CommitID:      event.CommitID,
		Branch:        branch,
		Tag:           event.Tag,
		Committer:     event.Committer,
		Message:       event.Message,
		Source:        event.Source,
		Status:        contracts.StatusPending,
		Extra:         event.Extra,
	}
	if err := s.store.CreateBuild(ctx, build); err != nil {
		return nil, fmt.Errorf("creating build: %w", err)
	}
	s.log.Info("Created build %d for project %d commit %s", build.ID, project.ID, event.CommitID)
	return build, nil
}

func (s *Service) enqueue(ctx context.Context, projectID, buildID int64) error {
	payload, err := json.Marshal(contracts.BuildRequest{BuildID: buildID, ProjectID: projectID})
	if err != nil {
		return fmt.Errorf("encoding build request: %w", err)
	}
	key := strconv.FormatInt(projectID, 10)
	return s.broker.Publish(ctx, contracts.TopicBuildsQueued, key, payload)
}

// seenKeys indexes a commit's existing builds by their dedup key. The same
// commit may build again for a different environment or a new tag, but never
// for a key it already holds.
func seenKeys(builds []contracts.Build) map[string]bool {
	seen := make(map[string]bool, len(builds))
	for _, build := range builds {
		seen[dedupKey(build.EnvironmentID, build.Tag)] = true
	}
	return seen
}

func dedupKey(environmentID *int64, tag string) string {
	env := ""
	if environmentID != nil {
		env = strconv.FormatInt(*environmentID, 10)
	}
	return env + "\x00" + tag
}

func notFound(projectID int64) *Result {
	return &Result{
		Status:       StatusFailed,
		Message:      fmt.Sprintf("project %d not found", projectID),
		ResponseCode: http.StatusNotFound,
	}
}
