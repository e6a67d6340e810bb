package step

import (
	"context"
	"io"
	"os/exec"
	"time"
)

// Command is one opaque shell command.
type Command struct {
	Script string
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// CommandRunner executes raw command steps.
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd Command) error
}

// ShellRunner runs commands with `sh -c`.
type ShellRunner struct {
	Shell string
	// WaitDelay bounds how long output pipes are drained after the context
	// kills the process.
	WaitDelay time.Duration
}

func (r ShellRunner) RunCommand(ctx context.Context, c Command) error {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", c.Script)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	return cmd.Run()
}
