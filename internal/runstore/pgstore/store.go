// Package pgstore is a Postgres implementation of runstore.Store over
// database/sql and the pgx driver.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/trigger"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workflow    TEXT NOT NULL,
	event       TEXT NOT NULL,
	ref         TEXT NOT NULL,
	sha         TEXT NOT NULL,
	repository  TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS job_runs (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	job_id   TEXT NOT NULL,
	position INTEGER NOT NULL,
	snapshot JSONB NOT NULL,
	PRIMARY KEY (run_id, job_id)
);
CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at DESC);`

// Store is a runstore.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

var _ runstore.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate runs: %w", err)
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run runstore.Run, jobs []jobrun.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, workflow, event, ref, sha, repository, attempt, status, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
		ON CONFLICT (id) DO UPDATE SET
			workflow = EXCLUDED.workflow, status = EXCLUDED.status,
			started_at = EXCLUDED.started_at, finished_at = NULL`,
		run.ID, run.Workflow, string(run.Event), run.Ref, run.SHA, run.Repository, run.Attempt, string(run.Status), run.Started)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM job_runs WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("reset job runs of %s: %w", run.ID, err)
	}
	for i, j := range jobs {
		body, merr := json.Marshal(j)
		if merr != nil {
			return fmt.Errorf("encode job run %s: %w", j.ID, merr)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO job_runs (run_id, job_id, position, snapshot) VALUES ($1, $2, $3, $4)`,
			run.ID, j.ID, i, body); err != nil {
			return fmt.Errorf("save job run %s: %w", j.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) SaveJob(ctx context.Context, runID string, job jobrun.Snapshot) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job run %s: %w", job.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_runs (run_id, job_id, position, snapshot)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position), -1) + 1 FROM job_runs WHERE run_id = $1), $3)
		ON CONFLICT (run_id, job_id) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		runID, job.ID, body)
	if err != nil {
		return fmt.Errorf("save job run %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status jobrun.Status, finished time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET status = $2, finished_at = $3 WHERE id = $1`, runID, string(status), finished)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return runstore.ErrNotFound
	}
	return nil
}

const runColumns = `id, workflow, event, ref, sha, repository, attempt, status, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (runstore.Run, error) {
	var (
		r        runstore.Run
		event    string
		status   string
		finished sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.Workflow, &event, &r.Ref, &r.SHA, &r.Repository, &r.Attempt, &status, &r.Started, &finished); err != nil {
		return runstore.Run{}, err
	}
	r.Event = trigger.Event(event)
	r.Status = jobrun.Status(status)
	if finished.Valid {
		r.Finished = finished.Time
	}
	return r, nil
}

func (s *Store) Run(ctx context.Context, id string) (*runstore.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) Runs(ctx context.Context, limit int) ([]runstore.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []runstore.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Jobs(ctx context.Context, runID string) ([]jobrun.Snapshot, error) {
	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM job_runs WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list job runs of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []jobrun.Snapshot
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		var j jobrun.Snapshot
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, fmt.Errorf("decode job run: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
