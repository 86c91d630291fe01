package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cadence-ci/src/contracts"
)

// MemoryStore is a thread-safe in-memory implementation of Store.
// Used for local mode and tests.
type MemoryStore struct {
	mu           sync.Mutex
	builds       map[int64]*contracts.Build
	projects     map[int64]*contracts.Project
	environments map[int64]*contracts.Environment
	buildErrors  map[int64][]contracts.BuildError // build_id -> errors

	nextBuildID       int64
	nextProjectID     int64
	nextEnvironmentID int64
	nextErrorID       int64

	// commitLocks serializes fan-out check-then-create per
	// (project, commit) key.
	commitLocks   map[string]*sync.Mutex
	commitLocksMu sync.Mutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		builds:       make(map[int64]*contracts.Build),
		projects:     make(map[int64]*contracts.Project),
		environments: make(map[int64]*contracts.Environment),
		buildErrors:  make(map[int64][]contracts.BuildError),
		commitLocks:  make(map[string]*sync.Mutex),
	}
}

// GetBuild returns a build by ID.
func (s *MemoryStore) GetBuild(ctx context.Context, id int64) (*contracts.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	build, exists := s.builds[id]
	if !exists {
		return nil, ErrNotFound{Entity: "build", ID: id}
	}
	copied := *build
	return &copied, nil
}

// CreateBuild assigns an ID and creation time and stores the build.
func (s *MemoryStore) CreateBuild(ctx context.Context, build *contracts.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBuildID++
	build.ID = s.nextBuildID
	if build.CreatedAt.IsZero() {
		build.CreatedAt = time.Now()
	}
	copied := *build
	s.builds[build.ID] = &copied
	return nil
}

// SaveBuild overwrites an existing build.
func (s *MemoryStore) SaveBuild(ctx context.Context, build *contracts.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.builds[build.ID]; !exists {
		return ErrNotFound{Entity: "build", ID: build.ID}
	}
	copied := *build
	s.builds[build.ID] = &copied
	return nil
}

// BuildsByProjectAndCommit returns all builds for a project+commit pair,
// oldest first.
func (s *MemoryStore) BuildsByProjectAndCommit(ctx context.Context, projectID int64, commitID string) ([]contracts.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []contracts.Build
	for _, build := range s.builds {
		if build.ProjectID == projectID && build.CommitID == commitID {
			result = append(result, *build)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// PreviousBuild returns the newest build on project+branch with an ID below
// beforeID, or (nil, nil) when there is none.
func (s *MemoryStore) PreviousBuild(ctx context.Context, projectID int64, branch string, beforeID int64) (*contracts.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var previous *contracts.Build
	for _, build := range s.builds {
		if build.ProjectID != projectID || build.Branch != branch || build.ID >= beforeID {
			continue
		}
		if previous == nil || build.ID > previous.ID {
			previous = build
		}
	}
	if previous == nil {
		return nil, nil
	}
	copied := *previous
	return &copied, nil
}

// RecentBuilds returns the newest builds across all projects, newest first.
func (s *MemoryStore) RecentBuilds(ctx context.Context, limit int) ([]contracts.Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []contracts.Build
	for _, build := range s.builds {
		result = append(result, *build)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ErrorTrend returns error counts for the current build and its immediate
// predecessor on the same project+branch, newest first.
func (s *MemoryStore) ErrorTrend(ctx context.Context, buildID, projectID int64, branch string) ([]TrendPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []*contracts.Build
	for _, build := range s.builds {
		if build.ProjectID == projectID && build.Branch == branch && build.ID <= buildID {
			history = append(history, build)
		}
	}
	sort.Slice(history, func(i, j int) bool { return history[i].ID > history[j].ID })
	if len(history) > 2 {
		history = history[:2]
	}

	trend := make([]TrendPoint, 0, len(history))
	for _, build := range history {
		trend = append(trend, TrendPoint{BuildID: build.ID, Count: len(s.buildErrors[build.ID])})
	}
	return trend, nil
}

// GetProject returns a project by ID.
func (s *MemoryStore) GetProject(ctx context.Context, id int64) (*contracts.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, exists := s.projects[id]
	if !exists {
		return nil, ErrNotFound{Entity: "project", ID: id}
	}
	copied := *project
	return &copied, nil
}

// SaveProject inserts or updates a project. A zero ID gets a fresh one.
func (s *MemoryStore) SaveProject(ctx context.Context, project *contracts.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.ID == 0 {
		s.nextProjectID++
		project.ID = s.nextProjectID
	}
	copied := *project
	s.projects[project.ID] = &copied
	return nil
}

// GetEnvironment returns an environment by ID.
func (s *MemoryStore) GetEnvironment(ctx context.Context, id int64) (*contracts.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, exists := s.environments[id]
	if !exists {
		return nil, ErrNotFound{Entity: "environment", ID: id}
	}
	copied := *env
	copied.Branches = append([]string(nil), env.Branches...)
	return &copied, nil
}

// EnvironmentsByProject returns a project's environments ordered by ID.
func (s *MemoryStore) EnvironmentsByProject(ctx context.Context, projectID int64) ([]contracts.Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []contracts.Environment
	for _, env := range s.environments {
		if env.ProjectID == projectID {
			copied := *env
			copied.Branches = append([]string(nil), env.Branches...)
			result = append(result, copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// EnvironmentByNameAndProject returns the environment with the given name in
// a project, or (nil, nil) when there is none.
func (s *MemoryStore) EnvironmentByNameAndProject(ctx context.Context, name string, projectID int64) (*contracts.Environment, error) {
	if name == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, env := range s.environments {
		if env.ProjectID == projectID && env.Name == name {
			copied := *env
			copied.Branches = append([]string(nil), env.Branches...)
			return &copied, nil
		}
	}
	return nil, nil
}

// SaveEnvironment inserts or updates an environment. A zero ID gets a fresh
// one.
func (s *MemoryStore) SaveEnvironment(ctx context.Context, env *contracts.Environment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env.ID == 0 {
		s.nextEnvironmentID++
		env.ID = s.nextEnvironmentID
	}
	copied := *env
	copied.Branches = append([]string(nil), env.Branches...)
	s.environments[env.ID] = &copied
	return nil
}

// SaveBuildErrors appends a batch of build errors.
func (s *MemoryStore) SaveBuildErrors(ctx context.Context, errs []contracts.BuildError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, buildError := range errs {
		s.nextErrorID++
		buildError.ID = s.nextErrorID
		if buildError.CreatedAt.IsZero() {
			buildError.CreatedAt = time.Now()
		}
		s.buildErrors[buildError.BuildID] = append(s.buildErrors[buildError.BuildID], buildError)
	}
	return nil
}

// CountBuildErrors returns the number of errors recorded for a build.
func (s *MemoryStore) CountBuildErrors(ctx context.Context, buildID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.buildErrors[buildID]), nil
}

// BuildErrorsByBuild returns all errors recorded for a build in insertion
// order.
func (s *MemoryStore) BuildErrorsByBuild(ctx context.Context, buildID int64) ([]contracts.BuildError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]contracts.BuildError(nil), s.buildErrors[buildID]...), nil
}

// WithCommitLock serializes fn against other callers with the same
// (projectID, commitID) key.
func (s *MemoryStore) WithCommitLock(ctx context.Context, projectID int64, commitID string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%d:%s", projectID, commitID)

	s.commitLocksMu.Lock()
	lock, exists := s.commitLocks[key]
	if !exists {
		lock = &sync.Mutex{}
		s.commitLocks[key] = lock
	}
	s.commitLocksMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
