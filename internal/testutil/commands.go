package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/gridci/internal/step"
)

// ExecutionRecord holds the start and end times of one command.
type ExecutionRecord struct {
	Script string
	Start  time.Time
	End    time.Time
}

// CommandRecorder is a step.CommandRunner that records every command. Hook,
// when set, decides each command's result; otherwise every command succeeds.
type CommandRecorder struct {
	Hook func(ctx context.Context, script string) error

	mu      sync.Mutex
	records []ExecutionRecord
	running int
	peak    int
}

var _ step.CommandRunner = (*CommandRecorder)(nil)

func (c *CommandRecorder) RunCommand(ctx context.Context, cmd step.Command) error {
	c.mu.Lock()
	c.running++
	c.peak = max(c.peak, c.running)
	c.mu.Unlock()

	start := time.Now()
	var err error
	if c.Hook != nil {
		err = c.Hook(ctx, cmd.Script)
	}
	if cmd.Stdout != nil {
		fmt.Fprintln(cmd.Stdout, "ran:", cmd.Script)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running--
	c.records = append(c.records, ExecutionRecord{Script: cmd.Script, Start: start, End: time.Now()})
	return err
}

// Records returns every finished command in completion order.
func (c *CommandRecorder) Records() []ExecutionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ExecutionRecord(nil), c.records...)
}

// Scripts returns the finished commands' scripts in completion order.
func (c *CommandRecorder) Scripts() []string {
	var out []string
	for _, r := range c.Records() {
		out = append(out, r.Script)
	}
	return out
}

// Record returns the record of script, if it ran.
func (c *CommandRecorder) Record(script string) (ExecutionRecord, bool) {
	for _, r := range c.Records() {
		if r.Script == script {
			return r, true
		}
	}
	return ExecutionRecord{}, false
}

// Peak returns the highest number of commands that ran at once.
func (c *CommandRecorder) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// Sleep returns a hook that sleeps for d on every command, or until the
// context is done.
func Sleep(d time.Duration) func(context.Context, string) error {
	return func(ctx context.Context, _ string) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
