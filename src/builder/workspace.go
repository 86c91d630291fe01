package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cadence-ci/src/contracts"
	"cadence-ci/src/plugin"
)

// Workspaces manages the per-build working directories under a base path.
// Each directory is owned by exactly one pipeline run and removed by that
// run at the end, unless keep is set for debugging.
type Workspaces struct {
	base string
	keep bool
}

func NewWorkspaces(base string, keep bool) *Workspaces {
	return &Workspaces{base: base, keep: keep}
}

// Path returns the working directory for a build.
func (w *Workspaces) Path(buildID int64) string {
	return filepath.Join(w.base, fmt.Sprintf("build-%d", buildID))
}

// Create makes a fresh working directory for a build, removing any leftover
// from a previous run of the same build.
func (w *Workspaces) Create(buildID int64) (string, error) {
	dir := w.Path(buildID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing working directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating working directory: %w", err)
	}
	return dir, nil
}

// Cleanup removes a build's working directory. A no-op when keep is set.
func (w *Workspaces) Cleanup(buildID int64) error {
	if w.keep {
		return nil
	}
	return os.RemoveAll(w.Path(buildID))
}

// WorkingCopy materializes a project's source in the build's working
// directory. A failure here is fatal for the build: core stages are skipped
// and the build is marked failed.
type WorkingCopy interface {
	Prepare(ctx context.Context, buildContext *plugin.Context) error
}

// WorkingCopyFor picks the working copy strategy for a project type.
func WorkingCopyFor(projectType contracts.ProjectType) WorkingCopy {
	switch projectType {
	case contracts.ProjectTypeLocal:
		return &LocalWorkingCopy{}
	case contracts.ProjectTypeHg, contracts.ProjectTypeBitbucketHg:
		return &HgWorkingCopy{}
	case contracts.ProjectTypeSvn:
		return &SvnWorkingCopy{}
	default:
		return &GitWorkingCopy{}
	}
}

// GitWorkingCopy clones the project reference and checks out the build's
// commit. Covers git, github, gitlab, bitbucket, bitbucket-server, and gogs
// projects, which all speak the git protocol.
type GitWorkingCopy struct{}

func (g *GitWorkingCopy) Prepare(ctx context.Context, buildContext *plugin.Context) error {
	clone := fmt.Sprintf("git clone --recursive %q .", buildContext.Project.Reference)
	if code, err := buildContext.Commands.Run(ctx, clone, nil); err != nil || code != 0 {
		return cloneFailure("git clone", code, err, buildContext.Commands.LastOutput())
	}

	if buildContext.Build.CommitID != "" {
		checkout := fmt.Sprintf("git checkout %q", buildContext.Build.CommitID)
		if code, err := buildContext.Commands.Run(ctx, checkout, nil); err != nil || code != 0 {
			return cloneFailure("git checkout", code, err, buildContext.Commands.LastOutput())
		}
	}
	return nil
}

// HgWorkingCopy clones a Mercurial repository and updates to the build's
// commit.
type HgWorkingCopy struct{}

func (h *HgWorkingCopy) Prepare(ctx context.Context, buildContext *plugin.Context) error {
	clone := fmt.Sprintf("hg clone %q .", buildContext.Project.Reference)
	if code, err := buildContext.Commands.Run(ctx, clone, nil); err != nil || code != 0 {
		return cloneFailure("hg clone", code, err, buildContext.Commands.LastOutput())
	}

	if buildContext.Build.CommitID != "" {
		update := fmt.Sprintf("hg update %q", buildContext.Build.CommitID)
		if code, err := buildContext.Commands.Run(ctx, update, nil); err != nil || code != 0 {
			return cloneFailure("hg update", code, err, buildContext.Commands.LastOutput())
		}
	}
	return nil
}

// SvnWorkingCopy checks out a Subversion working copy.
type SvnWorkingCopy struct{}

func (s *SvnWorkingCopy) Prepare(ctx context.Context, buildContext *plugin.Context) error {
	checkout := fmt.Sprintf("svn checkout %q .", buildContext.Project.Reference)
	if buildContext.Build.CommitID != "" {
		checkout = fmt.Sprintf("svn checkout -r %q %q .", buildContext.Build.CommitID, buildContext.Project.Reference)
	}
	if code, err := buildContext.Commands.Run(ctx, checkout, nil); err != nil || code != 0 {
		return cloneFailure("svn checkout", code, err, buildContext.Commands.LastOutput())
	}
	return nil
}

// LocalWorkingCopy copies a local directory into the workspace. Used for
// local-type projects where the reference is a filesystem path.
type LocalWorkingCopy struct{}

func (l *LocalWorkingCopy) Prepare(ctx context.Context, buildContext *plugin.Context) error {
	if info, err := os.Stat(buildContext.Project.Reference); err != nil || !info.IsDir() {
		return fmt.Errorf("local reference %q is not a directory", buildContext.Project.Reference)
	}
	copyCmd := fmt.Sprintf("cp -R %q/. .", buildContext.Project.Reference)
	if code, err := buildContext.Commands.Run(ctx, copyCmd, nil); err != nil || code != 0 {
		return cloneFailure("copy", code, err, buildContext.Commands.LastOutput())
	}
	return nil
}

func cloneFailure(step string, code int, err error, output string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s exited with code %d: %s", step, code, output)
}
