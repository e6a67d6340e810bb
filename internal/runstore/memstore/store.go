// Package memstore provides an ephemeral, thread-safe, in-memory
// implementation of runstore.Store.
//
// Runs are kept in a sync.Map keyed by run ID; each run guards its own JobRun
// snapshots, so concurrent updates to different runs never contend.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/runstore"
)

type entry struct {
	mu    sync.Mutex
	run   runstore.Run
	order []string
	jobs  map[string]jobrun.Snapshot
}

// Store is an in-memory runstore.Store.
type Store struct {
	runs sync.Map // Key: run ID, Value: *entry
}

var _ runstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) SaveRun(_ context.Context, run runstore.Run, jobs []jobrun.Snapshot) error {
	e := &entry{run: run, jobs: make(map[string]jobrun.Snapshot, len(jobs))}
	for _, j := range jobs {
		e.order = append(e.order, j.ID)
		e.jobs[j.ID] = j
	}
	s.runs.Store(run.ID, e)
	return nil
}

func (s *Store) load(id string) (*entry, error) {
	v, ok := s.runs.Load(id)
	if !ok {
		return nil, runstore.ErrNotFound
	}
	return v.(*entry), nil
}

func (s *Store) SaveJob(_ context.Context, runID string, job jobrun.Snapshot) error {
	e, err := s.load(runID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.jobs[job.ID]; !ok {
		e.order = append(e.order, job.ID)
	}
	e.jobs[job.ID] = job
	return nil
}

func (s *Store) FinishRun(_ context.Context, runID string, status jobrun.Status, finished time.Time) error {
	e, err := s.load(runID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.run.Status = status
	e.run.Finished = finished
	return nil
}

func (s *Store) Run(_ context.Context, id string) (*runstore.Run, error) {
	e, err := s.load(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	run := e.run
	return &run, nil
}

func (s *Store) Runs(_ context.Context, limit int) ([]runstore.Run, error) {
	var out []runstore.Run
	s.runs.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		out = append(out, e.run)
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.After(out[j].Started)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Jobs(_ context.Context, runID string) ([]jobrun.Snapshot, error) {
	e, err := s.load(runID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]jobrun.Snapshot, 0, len(e.order))
	for _, id := range e.order {
		j := e.jobs[id]
		j.Steps = slices.Clone(j.Steps)
		out = append(out, j)
	}
	return out, nil
}
