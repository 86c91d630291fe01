// Package store defines the interface for persistent entity storage and
// provides Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"

	"cadence-ci/src/contracts"
)

// TrendPoint is one build's error count in a branch history, newest first.
type TrendPoint struct {
	BuildID int64
	Count   int
}

// Store persists builds, projects, environments, and build errors.
//
// Lookup methods that can legitimately find nothing (PreviousBuild,
// EnvironmentByNameAndProject) return (nil, nil); Get methods return
// ErrNotFound.
type Store interface {
	// Builds.
	GetBuild(ctx context.Context, id int64) (*contracts.Build, error)
	CreateBuild(ctx context.Context, build *contracts.Build) error
	SaveBuild(ctx context.Context, build *contracts.Build) error
	BuildsByProjectAndCommit(ctx context.Context, projectID int64, commitID string) ([]contracts.Build, error)
	PreviousBuild(ctx context.Context, projectID int64, branch string, beforeID int64) (*contracts.Build, error)
	RecentBuilds(ctx context.Context, limit int) ([]contracts.Build, error)

	// ErrorTrend returns per-build error counts for the project+branch
	// history up to and including buildID, newest first, at most two
	// entries: the current build and its immediate predecessor.
	ErrorTrend(ctx context.Context, buildID, projectID int64, branch string) ([]TrendPoint, error)

	// Projects.
	GetProject(ctx context.Context, id int64) (*contracts.Project, error)
	SaveProject(ctx context.Context, project *contracts.Project) error

	// Environments.
	GetEnvironment(ctx context.Context, id int64) (*contracts.Environment, error)
	EnvironmentsByProject(ctx context.Context, projectID int64) ([]contracts.Environment, error)
	EnvironmentByNameAndProject(ctx context.Context, name string, projectID int64) (*contracts.Environment, error)
	SaveEnvironment(ctx context.Context, env *contracts.Environment) error

	// Build errors.
	SaveBuildErrors(ctx context.Context, errs []contracts.BuildError) error
	CountBuildErrors(ctx context.Context, buildID int64) (int, error)
	BuildErrorsByBuild(ctx context.Context, buildID int64) ([]contracts.BuildError, error)

	// WithCommitLock runs fn while holding an exclusive lock keyed by
	// (projectID, commitID). The fan-out engine's check-then-create
	// sequence runs under this lock so that two near-simultaneous webhook
	// deliveries for the same commit cannot both pass the dedup check.
	WithCommitLock(ctx context.Context, projectID int64, commitID string, fn func(ctx context.Context) error) error

	// Close closes the store connection.
	Close() error
}

// ErrNotFound indicates an entity lookup by ID found nothing.
type ErrNotFound struct {
	Entity string
	ID     int64
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var notFound ErrNotFound
	return errors.As(err, &notFound)
}
