// Package contracts defines the persistent entities and message types shared
// across the orchestrator: builds, projects, environments, build errors, and
// the broker payloads that connect the webhook surface to the workers.
package contracts

import "time"

// Status is the lifecycle state of a build. Transitions are monotonic:
// pending -> running -> success|failed, never backwards.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSuccess
	StatusFailed
)

// String returns the lower-case name used in JSON responses and logs.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the status is a final one. Only terminal builds
// contribute to the error trend baseline.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Source identifies what triggered a build.
type Source int

const (
	SourceUnknown Source = iota
	SourceManual
	SourcePeriodical
	SourceWebhookPush
	SourceWebhookPullRequestCreated
	SourceWebhookPullRequestUpdated
	SourceWebhookPullRequestMerged
	SourceWebhookPullRequestClosed
)

// String returns the lower-case name used in JSON responses and logs.
func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourcePeriodical:
		return "periodical"
	case SourceWebhookPush:
		return "webhook-push"
	case SourceWebhookPullRequestCreated:
		return "webhook-pull-request-created"
	case SourceWebhookPullRequestUpdated:
		return "webhook-pull-request-updated"
	case SourceWebhookPullRequestMerged:
		return "webhook-pull-request-merged"
	case SourceWebhookPullRequestClosed:
		return "webhook-pull-request-closed"
	}
	return "unknown"
}

// Severity classifies a build error, lowest to highest.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityNormal
	SeverityHigh
	SeverityCritical
)

// ProjectType is the VCS/provider kind of a project. Webhook endpoints accept
// only the types listed for them.
type ProjectType string

const (
	ProjectTypeLocal           ProjectType = "local"
	ProjectTypeGit             ProjectType = "git"
	ProjectTypeGitHub          ProjectType = "github"
	ProjectTypeGitLab          ProjectType = "gitlab"
	ProjectTypeBitbucket       ProjectType = "bitbucket"
	ProjectTypeBitbucketHg     ProjectType = "bitbucket-hg"
	ProjectTypeBitbucketServer ProjectType = "bitbucket-server"
	ProjectTypeGogs            ProjectType = "gogs"
	ProjectTypeHg              ProjectType = "hg"
	ProjectTypeSvn             ProjectType = "svn"
)

// DefaultBranchFor returns the conventional default branch name for a
// project type when none is configured.
func DefaultBranchFor(t ProjectType) string {
	switch t {
	case ProjectTypeHg, ProjectTypeBitbucketHg:
		return "default"
	case ProjectTypeSvn:
		return "trunk"
	default:
		return "master"
	}
}

// Build represents one pipeline run against a single commit.
type Build struct {
	ID        int64 `json:"id"`
	ProjectID int64 `json:"project_id"`
	// EnvironmentID is nil for builds not targeting an environment.
	EnvironmentID *int64     `json:"environment_id,omitempty"`
	CommitID      string     `json:"commit_id"`
	Branch        string     `json:"branch"`
	Tag           string     `json:"tag,omitempty"`
	Committer     string     `json:"committer"`
	Message       string     `json:"message"`
	Source        Source     `json:"source"`
	Status        Status     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	// ErrorsTotal is the error count of this run; ErrorsPrevious is the
	// count of the immediately preceding terminal build on the same
	// branch. Both are nil until computed.
	ErrorsTotal    *int              `json:"errors_total,omitempty"`
	ErrorsPrevious *int              `json:"errors_previous,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
	Log            string            `json:"log,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Project is the configuration unit builds belong to.
type Project struct {
	ID    int64       `json:"id"`
	Title string      `json:"title"`
	Type  ProjectType `json:"type"`
	// Reference is what the working copy is created from: a clone URL for
	// remote types, a filesystem path for local projects.
	Reference         string `json:"reference"`
	DefaultBranch     string `json:"default_branch"`
	DefaultBranchOnly bool   `json:"default_branch_only"`
	Archived          bool   `json:"archived"`
	PublicStatus      bool   `json:"public_status"`
}

// Environment is a named deployment target with the branches that map to it.
// The branch list is mutable: pull requests carrying environment labels grow
// and shrink it.
type Environment struct {
	ID        int64    `json:"id"`
	ProjectID int64    `json:"project_id"`
	Name      string   `json:"name"`
	Branches  []string `json:"branches"`
}

// HasBranch reports whether the environment's branch list contains branch.
func (e *Environment) HasBranch(branch string) bool {
	for _, b := range e.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// BuildError is one diagnostic emitted by a plugin during a stage. Errors are
// created during execution, flushed in batches, and never mutated afterwards.
type BuildError struct {
	ID        int64     `json:"id"`
	BuildID   int64     `json:"build_id"`
	Plugin    string    `json:"plugin"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	File      string    `json:"file,omitempty"`
	Line      int       `json:"line,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
