package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/jobrun"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// maxHookBody bounds a webhook request body.
const maxHookBody = 1 << 20

// HookPayload is the body of POST /hooks/{event}.
type HookPayload struct {
	Ref        string `json:"ref"`
	SHA        string `json:"sha"`
	Repository string `json:"repository"`
	Attempt    int    `json:"attempt"`
}

// RunView is the body of GET /runs/{id}.
type RunView struct {
	Run  runstore.Run      `json:"run"`
	Jobs []jobrun.Snapshot `json:"jobs"`
}

// Handler returns the status server's routes. Runs started by webhooks use
// base, so they outlive the request that triggered them.
func (a *App) Handler(base context.Context) http.Handler {
	base = a.Context(base)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.HandleFunc("GET /runs", a.listRunsHandler)
	mux.HandleFunc("GET /runs/{id}", a.runHandler)
	mux.HandleFunc("POST /hooks/{event}", func(w http.ResponseWriter, r *http.Request) {
		a.hookHandler(base, w, r)
	})
	return mux
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (a *App) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", s))
			return
		}
		limit = n
	}
	runs, err := a.store.Runs(r.Context(), limit)
	if err != nil {
		a.logger.Error("Failed to list runs.", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to list runs"))
		return
	}
	if runs == nil {
		runs = []runstore.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *App) runHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := a.store.Run(r.Context(), id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		a.logger.Error("Failed to load run.", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to load run"))
		return
	}
	jobs, err := a.store.Jobs(r.Context(), id)
	if err != nil {
		a.logger.Error("Failed to load job runs.", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("failed to load job runs"))
		return
	}
	writeJSON(w, http.StatusOK, RunView{Run: *run, Jobs: jobs})
}

// hookHandler compiles the definition for the triggered run synchronously, so
// definition errors are reported to the caller, then runs it in the
// background. A run whose deterministic ID is already active is rejected.
func (a *App) hookHandler(base context.Context, w http.ResponseWriter, r *http.Request) {
	event, err := trigger.ParseEvent(r.PathValue("event"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	var p HookPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHookBody))
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	run, err := trigger.NewRun(event, p.Ref, p.SHA, p.Repository, p.Attempt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := a.Plan(r.Context(), run); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if _, busy := a.active.LoadOrStore(run.ID, struct{}{}); busy {
		writeError(w, http.StatusConflict, fmt.Errorf("run %s is already in progress", run.ID))
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.active.Delete(run.ID)
		if _, err := a.Run(base, run); err != nil {
			ctxlog.FromContext(base).Error("Triggered run failed to start.", "run_id", run.ID, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// Wait blocks until every webhook-triggered run has finished.
func (a *App) Wait() {
	a.wg.Wait()
}

// StartServer serves the status routes on the configured port in the
// background. It is a no-op when the port is 0.
func (a *App) StartServer(ctx context.Context) error {
	logger := a.logger
	if a.config.StatusPort <= 0 {
		logger.Debug("Status server not started: disabled")
		return nil
	}
	addr := fmt.Sprintf(":%d", a.config.StatusPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// Serve returns http.ErrServerClosed on graceful shutdown.
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

// StopServer shuts the status server down gracefully.
func (a *App) StopServer() error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.logger.Info("🩺 Shutting down status server...")
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	a.server = nil
	return nil
}

// Serve runs the status server and accepts webhook triggers until ctx is
// done, then waits for in-flight runs. Runs observe the cancellation.
func (a *App) Serve(ctx context.Context) error {
	if a.config.StatusPort <= 0 {
		return errors.New("serve requires a status port")
	}
	if err := a.StartServer(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	err := a.StopServer()
	a.Wait()
	return err
}
