package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"cadence-ci/src/logger"
)

// ShellRunner executes shell commands inside the build's working directory.
// Commands run in their own process group so that cancellation kills the
// whole tree, not just the top-level shell. Implements plugin.CommandRunner.
type ShellRunner struct {
	workDir string
	log     logger.Logger

	mu         sync.Mutex
	lastOutput string
}

func NewShellRunner(workDir string, log logger.Logger) *ShellRunner {
	return &ShellRunner{workDir: workDir, log: log}
}

// Run executes command via the shell and returns its exit code. A non-nil
// error means the command could not be started at all.
func (r *ShellRunner) Run(ctx context.Context, command string, env map[string]string) (int, error) {
	r.log.Debug("$ %s", command)

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = r.workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		// Negative pid kills the whole process group.
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		waitErr = ctx.Err()
	}

	r.mu.Lock()
	r.lastOutput = output.String()
	r.mu.Unlock()

	if trimmed := output.String(); trimmed != "" {
		r.log.Debug("%s", trimmed)
	}

	if waitErr == nil {
		return 0, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 0, waitErr
}

// LastOutput returns the combined output of the last command run.
func (r *ShellRunner) LastOutput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutput
}
