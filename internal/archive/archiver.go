package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/planner"
	"github.com/specialistvlad/gridci/internal/scheduler"
	"github.com/specialistvlad/gridci/internal/trigger"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Archiver writes run archives:
//
//	<prefix>/<run id>/summary.json
//	<prefix>/<run id>/<job run>/<nn>-<step>.log
type Archiver struct {
	store  ObjectStore
	bucket string
	prefix string
}

func NewArchiver(store ObjectStore, bucket, prefix string) *Archiver {
	return &Archiver{store: store, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

type summary struct {
	RunID    string            `json:"run_id"`
	Workflow string            `json:"workflow"`
	Event    trigger.Event     `json:"event"`
	Ref      string            `json:"ref"`
	SHA      string            `json:"sha"`
	Outcome  jobrun.Status     `json:"outcome"`
	Started  string            `json:"started"`
	Finished string            `json:"finished"`
	Jobs     []jobrun.Snapshot `json:"jobs"`
}

// Archive uploads res. Logs are stored as separate objects and stripped from
// the summary.
func (a *Archiver) Archive(ctx context.Context, res *scheduler.Result) error {
	base := path.Join(a.prefix, res.Run.ID)
	jobs := make([]jobrun.Snapshot, len(res.Jobs))

	for i, j := range res.Jobs {
		j.Steps = append([]jobrun.StepRun(nil), j.Steps...)
		for n := range j.Steps {
			st := &j.Steps[n]
			if st.Log == "" {
				continue
			}
			key := path.Join(base, sanitize(j.ID), fmt.Sprintf("%02d-%s.log", n+1, sanitize(st.Name)))
			if err := a.put(ctx, key, []byte(st.Log), "text/plain; charset=utf-8"); err != nil {
				return err
			}
			st.Log = ""
		}
		jobs[i] = j
	}

	body, err := json.MarshalIndent(summary{
		RunID:    res.Run.ID,
		Workflow: res.Workflow,
		Event:    res.Run.Event,
		Ref:      res.Run.Ref,
		SHA:      res.Run.SHA,
		Outcome:  res.Outcome,
		Started:  res.Started.UTC().Format(time.RFC3339),
		Finished: res.Finished.UTC().Format(time.RFC3339),
		Jobs:     jobs,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	return a.put(ctx, path.Join(base, "summary.json"), body, "application/json")
}

func (a *Archiver) put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := a.store.Put(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.Trim(unsafeKeyChars.ReplaceAllString(s, "_"), "_")
}

// Recorder archives every finished run. Failures are logged; archival never
// changes a run's outcome.
func (a *Archiver) Recorder() scheduler.Recorder {
	return recorder{a}
}

type recorder struct{ a *Archiver }

func (recorder) RunStarted(context.Context, *planner.Plan) {}

func (recorder) JobUpdated(context.Context, trigger.Run, jobrun.Snapshot) {}

func (r recorder) RunFinished(ctx context.Context, res *scheduler.Result) {
	logger := ctxlog.FromContext(ctx)
	if err := r.a.Archive(ctx, res); err != nil {
		logger.Error("Failed to archive run.", "run_id", res.Run.ID, "error", err)
		return
	}
	logger.Info("Run archived.", "run_id", res.Run.ID, "bucket", r.a.bucket)
}
