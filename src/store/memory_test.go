package store

import (
	"context"
	"testing"

	"cadence-ci/src/contracts"
)

func TestMemoryStore_BuildLifecycle(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	build := &contracts.Build{
		ProjectID: 1,
		CommitID:  "abc123",
		Branch:    "main",
		Status:    contracts.StatusPending,
	}
	if err := s.CreateBuild(ctx, build); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}
	if build.ID == 0 {
		t.Fatal("Expected build ID to be assigned")
	}

	build.Status = contracts.StatusRunning
	if err := s.SaveBuild(ctx, build); err != nil {
		t.Fatalf("SaveBuild failed: %v", err)
	}

	loaded, err := s.GetBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if loaded.Status != contracts.StatusRunning {
		t.Errorf("Expected status running, got %s", loaded.Status)
	}
}

func TestMemoryStore_GetBuildNotFound(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.GetBuild(context.Background(), 42)
	if err == nil {
		t.Fatal("Expected error for missing build")
	}
	if !IsNotFound(err) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_BuildsByProjectAndCommit(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	for _, commit := range []string{"abc", "abc", "def"} {
		if err := s.CreateBuild(ctx, &contracts.Build{ProjectID: 1, CommitID: commit, Branch: "main"}); err != nil {
			t.Fatalf("CreateBuild failed: %v", err)
		}
	}
	if err := s.CreateBuild(ctx, &contracts.Build{ProjectID: 2, CommitID: "abc", Branch: "main"}); err != nil {
		t.Fatalf("CreateBuild failed: %v", err)
	}

	builds, err := s.BuildsByProjectAndCommit(ctx, 1, "abc")
	if err != nil {
		t.Fatalf("BuildsByProjectAndCommit failed: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("Expected 2 builds, got %d", len(builds))
	}
	if builds[0].ID > builds[1].ID {
		t.Error("Expected builds ordered oldest first")
	}
}

func TestMemoryStore_PreviousBuild(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	first := &contracts.Build{ProjectID: 1, CommitID: "a", Branch: "main", Status: contracts.StatusFailed}
	second := &contracts.Build{ProjectID: 1, CommitID: "b", Branch: "main", Status: contracts.StatusSuccess}
	other := &contracts.Build{ProjectID: 1, CommitID: "c", Branch: "develop", Status: contracts.StatusSuccess}
	for _, b := range []*contracts.Build{first, second, other} {
		if err := s.CreateBuild(ctx, b); err != nil {
			t.Fatalf("CreateBuild failed: %v", err)
		}
	}

	previous, err := s.PreviousBuild(ctx, 1, "main", second.ID)
	if err != nil {
		t.Fatalf("PreviousBuild failed: %v", err)
	}
	if previous == nil || previous.ID != first.ID {
		t.Fatalf("Expected previous build %d, got %+v", first.ID, previous)
	}

	none, err := s.PreviousBuild(ctx, 1, "main", first.ID)
	if err != nil {
		t.Fatalf("PreviousBuild failed: %v", err)
	}
	if none != nil {
		t.Errorf("Expected no previous build, got %+v", none)
	}
}

func TestMemoryStore_ErrorTrend(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	older := &contracts.Build{ProjectID: 1, CommitID: "a", Branch: "main", Status: contracts.StatusSuccess}
	newer := &contracts.Build{ProjectID: 1, CommitID: "b", Branch: "main", Status: contracts.StatusFailed}
	for _, b := range []*contracts.Build{older, newer} {
		if err := s.CreateBuild(ctx, b); err != nil {
			t.Fatalf("CreateBuild failed: %v", err)
		}
	}

	olderErrors := []contracts.BuildError{
		{BuildID: older.ID, Plugin: "shell", Message: "one"},
		{BuildID: older.ID, Plugin: "shell", Message: "two"},
	}
	newerErrors := []contracts.BuildError{
		{BuildID: newer.ID, Plugin: "shell", Message: "three"},
	}
	if err := s.SaveBuildErrors(ctx, olderErrors); err != nil {
		t.Fatalf("SaveBuildErrors failed: %v", err)
	}
	if err := s.SaveBuildErrors(ctx, newerErrors); err != nil {
		t.Fatalf("SaveBuildErrors failed: %v", err)
	}

	trend, err := s.ErrorTrend(ctx, newer.ID, 1, "main")
	if err != nil {
		t.Fatalf("ErrorTrend failed: %v", err)
	}
	if len(trend) != 2 {
		t.Fatalf("Expected 2 trend points, got %d", len(trend))
	}
	if trend[0].BuildID != newer.ID || trend[0].Count != 1 {
		t.Errorf("Unexpected current trend point: %+v", trend[0])
	}
	if trend[1].BuildID != older.ID || trend[1].Count != 2 {
		t.Errorf("Unexpected previous trend point: %+v", trend[1])
	}
}

func TestMemoryStore_EnvironmentByNameAndProject(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	env := &contracts.Environment{ProjectID: 1, Name: "staging", Branches: []string{"release"}}
	if err := s.SaveEnvironment(ctx, env); err != nil {
		t.Fatalf("SaveEnvironment failed: %v", err)
	}

	found, err := s.EnvironmentByNameAndProject(ctx, "staging", 1)
	if err != nil {
		t.Fatalf("EnvironmentByNameAndProject failed: %v", err)
	}
	if found == nil || found.ID != env.ID {
		t.Fatalf("Expected environment %d, got %+v", env.ID, found)
	}

	missing, err := s.EnvironmentByNameAndProject(ctx, "qa", 1)
	if err != nil {
		t.Fatalf("EnvironmentByNameAndProject failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing environment, got %+v", missing)
	}
}

func TestMemoryStore_CommitLockSerializes(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	inside := 0
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.WithCommitLock(ctx, 1, "abc", func(ctx context.Context) error {
			inside++
			return nil
		})
	}()

	err := s.WithCommitLock(ctx, 1, "abc", func(ctx context.Context) error {
		inside++
		return nil
	})
	if err != nil {
		t.Fatalf("WithCommitLock failed: %v", err)
	}
	<-done

	if inside != 2 {
		t.Errorf("Expected both critical sections to run, got %d", inside)
	}
}
