package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vitalstat/vitalstat/internal/capability"
	"github.com/vitalstat/vitalstat/internal/domain"
	"github.com/vitalstat/vitalstat/internal/engine"
	"github.com/vitalstat/vitalstat/internal/platform/queue"
	"github.com/vitalstat/vitalstat/internal/platform/sqlite"
	"github.com/vitalstat/vitalstat/internal/platform/web"
	"github.com/vitalstat/vitalstat/internal/worker"
)

func main() {
	// 1. Initialize logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 2. Open the tabular store
	store, err := sqlite.Open(envOr("VITALSTAT_DB", "data/vitalstat.db"))
	if err != nil {
		slog.Error("Failed to open tabular store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. Build the execution engine with configured ceilings
	limits := engine.Limits{
		MaxWallTime:    time.Duration(envInt("VITALSTAT_MAX_WALL_SECONDS", 30)) * time.Second,
		MaxMemoryMB:    envInt("VITALSTAT_MAX_MEMORY_MB", 512),
		MaxOutputBytes: envInt("VITALSTAT_MAX_OUTPUT_BYTES", 1<<20),
	}
	eng := engine.New(store, limits)

	// 4. Broker + worker pool: executions run as independent jobs
	broker := queue.NewMemoryBroker(envInt("VITALSTAT_QUEUE_DEPTH", 16))
	pool := worker.NewPool(envInt("VITALSTAT_WORKERS", 4), broker, eng)
	if err := pool.Start(context.Background()); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}
	defer pool.Stop()

	srv := &server{
		store:    store,
		broker:   broker,
		reporter: capability.NewReporter(eng.Limits()),
		hub:      make(map[string]*websocket.Conn),
	}

	// 5. Forward finished jobs to connected websocket clients
	go srv.forwardResults()

	// 6. Rate limit executions: 1 request every 2s, burst of 5
	limiter := web.NewRateLimiter(0.5, 5.0)

	// 7. Routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/datasets", srv.handleUpload)
	mux.HandleFunc("GET /api/datasets", srv.handleList)
	mux.HandleFunc("POST /api/datasets/{id}/activate", srv.handleActivate)
	mux.HandleFunc("POST /api/execute", limiter.Middleware(srv.handleExecute))
	mux.HandleFunc("GET /api/capabilities", srv.handleCapabilities)
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("GET /api/ws", srv.handleWS)

	addr := envOr("VITALSTAT_ADDR", ":8080")
	slog.Info("API server starting", "addr", addr)
	if err := http.ListenAndServe(addr, enableCORS(mux)); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

type server struct {
	store    domain.DatasetStore
	broker   domain.JobBroker
	reporter *capability.Reporter

	// hub maps job IDs to the websocket connection awaiting that result.
	hub   map[string]*websocket.Conn
	hubMu sync.RWMutex
}

// handleUpload registers a new dataset; upload auto-activates it.
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string           `json:"name"`
		Rows []map[string]any `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewError(domain.KindInvalidInput, "invalid request body"))
		return
	}
	if req.Name == "" {
		writeError(w, domain.NewError(domain.KindInvalidInput, "dataset name is required"))
		return
	}

	ds, err := s.store.Register(r.Context(), req.Name, req.Rows)
	if err != nil {
		slog.Warn("Upload rejected", "name", req.Name, "error", err)
		writeError(w, domain.AsError(err))
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListWithStatus(r.Context())
	if err != nil {
		writeError(w, domain.AsError(err))
		return
	}
	if datasets == nil {
		datasets = []domain.Dataset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (s *server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Activate(r.Context(), id); err != nil {
		writeError(w, domain.AsError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": id})
}

// handleExecute runs one code submission through the broker and pool,
// answers synchronously, and mirrors the result onto the websocket feed.
func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req domain.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewError(domain.KindInvalidInput, "invalid request body"))
		return
	}
	if req.Code == "" {
		writeError(w, domain.NewError(domain.KindInvalidInput, "code is required"))
		return
	}

	jobID := uuid.NewString()
	resultCh := make(chan domain.ExecutionResult, 1)
	job := domain.Job{ID: jobID, Request: req, ResultCh: resultCh}

	slog.Info("Received submission", "jobID", jobID, "fileName", req.FileName)
	if err := s.broker.Publish(r.Context(), job); err != nil {
		slog.Error("Failed to publish job", "jobID", jobID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	select {
	case res := <-resultCh:
		writeJSON(w, http.StatusOK, executionPayload(jobID, res))
	case <-r.Context().Done():
		// Client went away; the websocket feed still gets the result.
		slog.Warn("Client disconnected before result", "jobID", jobID)
	}
}

func (s *server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"libraries": s.reporter.Libraries(),
		"limits":    s.reporter.Limits(),
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // local desktop shell
}

// handleWS registers a client for one job's result.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("Client connected via WebSocket", "jobID", jobID, "remoteAddr", conn.RemoteAddr())
	s.hubMu.Lock()
	s.hub[jobID] = conn
	s.hubMu.Unlock()

	defer func() {
		slog.Info("Client disconnected", "jobID", jobID)
		s.hubMu.Lock()
		delete(s.hub, jobID)
		s.hubMu.Unlock()
		conn.Close()
	}()

	// Hold the connection open until the client hangs up.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// forwardResults pushes finished jobs to whichever client subscribed to
// them.
func (s *server) forwardResults() {
	updates, err := s.broker.SubscribeResults(context.Background())
	if err != nil {
		slog.Error("Failed to subscribe to results", "error", err)
		return
	}
	for update := range updates {
		s.hubMu.RLock()
		conn, ok := s.hub[update.JobID]
		s.hubMu.RUnlock()
		if !ok {
			continue
		}
		if err := conn.WriteJSON(executionPayload(update.JobID, update.Result)); err != nil {
			slog.Error("Failed to write to websocket", "jobID", update.JobID, "error", err)
		}
	}
}

// executionPayload is the wire shape of one finished run.
func executionPayload(jobID string, res domain.ExecutionResult) map[string]any {
	payload := map[string]any{
		"job_id":            jobID,
		"success":           res.Success,
		"state":             res.State,
		"output":            res.Output,
		"execution_time_ms": res.Elapsed.Milliseconds(),
		"memory_used_mb":    res.PeakMemoryMB,
		"libraries":         res.Libraries,
	}
	if res.Err != nil {
		payload["error"] = res.Err
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders a structured core error with a matching HTTP status.
func writeError(w http.ResponseWriter, err *domain.Error) {
	status := http.StatusInternalServerError
	switch err.Kind {
	case domain.KindInvalidInput:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindDataUnavailable:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err})
}

// enableCORS allows the local frontend to call the API.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
