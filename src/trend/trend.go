// Package trend computes per-branch error count history for finished builds.
package trend

import (
	"context"
	"fmt"

	"cadence-ci/src/contracts"
	"cadence-ci/src/store"
)

// Tracker fills in a build's current and previous error counts from stored
// build errors and the branch history.
type Tracker struct {
	store store.Store
}

func New(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// Compute sets build.ErrorsTotal to the build's stored error count and, when
// the immediately preceding build on the same project and branch has reached
// a terminal status, sets build.ErrorsPrevious to that build's count. An
// in-flight or missing predecessor leaves ErrorsPrevious untouched so the
// last known baseline survives. The caller persists the build afterwards.
func (t *Tracker) Compute(ctx context.Context, build *contracts.Build) error {
	count, err := t.store.CountBuildErrors(ctx, build.ID)
	if err != nil {
		return fmt.Errorf("counting build errors: %w", err)
	}
	build.ErrorsTotal = &count

	history, err := t.store.ErrorTrend(ctx, build.ID, build.ProjectID, build.Branch)
	if err != nil {
		return fmt.Errorf("loading error trend: %w", err)
	}
	if len(history) < 2 {
		return nil
	}

	previous, err := t.store.GetBuild(ctx, history[1].BuildID)
	if err != nil {
		return fmt.Errorf("loading previous build: %w", err)
	}
	if !previous.Status.Terminal() {
		return nil
	}

	previousCount := history[1].Count
	build.ErrorsPrevious = &previousCount
	return nil
}
