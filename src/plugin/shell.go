package plugin

import (
	"context"
	"fmt"
	"time"

	"cadence-ci/src/contracts"
)

// Shell runs one or more shell commands in the build's working directory.
// Options:
//
//	commands: single command string or list of command strings
//	env:      map of extra environment variables
//	timeout:  per-command timeout in seconds (0 means none)
//
// Every configured command runs even after an earlier one fails, so all
// diagnostics from the stage are collected; the plugin reports failure if
// any command exited non-zero.
type Shell struct {
	buildContext *Context
	commands     []string
	env          map[string]string
	timeout      time.Duration
}

// NewShell creates a shell plugin from its options.
func NewShell(buildContext *Context, options Options) (Plugin, error) {
	commands := options.Strings("commands")
	if len(commands) == 0 {
		commands = options.Strings("command")
	}
	if len(commands) == 0 {
		return nil, fmt.Errorf("shell plugin requires a commands option")
	}

	env := make(map[string]string)
	if raw, ok := options["env"].(map[string]interface{}); ok {
		for key, value := range raw {
			if s, ok := value.(string); ok {
				env[key] = s
			}
		}
	}

	timeout := time.Duration(options.Int("timeout", 0)) * time.Second

	return &Shell{buildContext: buildContext, commands: commands, env: env, timeout: timeout}, nil
}

// Execute runs the configured commands in order.
func (p *Shell) Execute(ctx context.Context) (bool, error) {
	success := true
	for _, command := range p.commands {
		p.buildContext.Log.Info("shell: %s", command)

		exitCode, err := p.runCommand(ctx, command)
		if p.buildContext.Verbose {
			p.buildContext.Log.Debug("shell output:\n%s", p.buildContext.Commands.LastOutput())
		}
		if err != nil {
			p.buildContext.Errors.Record("shell", contracts.SeverityCritical,
				fmt.Sprintf("command %q could not be run: %v", command, err), "", 0)
			success = false
			continue
		}
		if exitCode != 0 {
			p.buildContext.Errors.Record("shell", contracts.SeverityHigh,
				fmt.Sprintf("command %q exited with code %d", command, exitCode), "", 0)
			success = false
		}
	}
	return success, nil
}

func (p *Shell) runCommand(ctx context.Context, command string) (int, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.buildContext.Commands.Run(ctx, command, p.env)
}
