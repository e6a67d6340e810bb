// Package trigger models the event that starts a workflow run and the
// immutable WorkflowRun value derived from it.
package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the kind of external trigger that started a run.
type Event string

const (
	Push             Event = "push"
	PullRequest      Event = "pull_request"
	WorkflowDispatch Event = "workflow_dispatch"
)

// ParseEvent validates a raw event name.
func ParseEvent(s string) (Event, error) {
	switch e := Event(strings.ToLower(strings.TrimSpace(s))); e {
	case Push, PullRequest, WorkflowDispatch:
		return e, nil
	}
	return "", fmt.Errorf("unknown trigger event %q: must be one of push, pull_request, workflow_dispatch", s)
}

// runNamespace scopes deterministic run identifiers.
var runNamespace = uuid.MustParse("6f1c3a52-26f4-4d5e-9a43-0b7d3c1e9f10")

// Run is a WorkflowRun. It is immutable once created; all fields are read-only
// by convention and the type is passed by value.
type Run struct {
	ID         string
	Event      Event
	Ref        string
	SHA        string
	Repository string
	Attempt    int
	CreatedAt  time.Time
}

// NewRun builds a Run. The identifier is derived from the trigger inputs, so
// re-running an identical trigger yields the same identifier (and therefore
// the same immutable artifact tags).
func NewRun(event Event, ref, sha, repository string, attempt int) (Run, error) {
	if ref == "" {
		return Run{}, fmt.Errorf("run ref cannot be empty")
	}
	if sha == "" {
		return Run{}, fmt.Errorf("run commit sha cannot be empty")
	}
	if attempt < 1 {
		attempt = 1
	}
	key := strings.Join([]string{repository, string(event), ref, sha, fmt.Sprint(attempt)}, "\x00")
	return Run{
		ID:         uuid.NewSHA1(runNamespace, []byte(key)).String(),
		Event:      event,
		Ref:        ref,
		SHA:        sha,
		Repository: repository,
		Attempt:    attempt,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// RefName returns the short branch or tag name of the ref.
func (r Run) RefName() string {
	for _, prefix := range []string{"refs/heads/", "refs/tags/", "refs/pull/"} {
		if strings.HasPrefix(r.Ref, prefix) {
			return strings.TrimPrefix(r.Ref, prefix)
		}
	}
	return r.Ref
}

// ShortSHA returns the first 12 characters of the commit identifier.
func (r Run) ShortSHA() string {
	if len(r.SHA) <= 12 {
		return r.SHA
	}
	return r.SHA[:12]
}
