// Package server exposes the branching service over an HTTP JSON API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kilupskalvis/dcbranch/internal/core"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/kilupskalvis/dcbranch/internal/snapshot"
)

// Config holds configurable limits for the server.
type Config struct {
	MaxRequestBody    int64  // bytes, for JSON endpoints
	RequestsPerMinute int    // per-client rate limit
	Token             string // bearer token for /api routes, empty disables auth
	Webhooks          *WebhookNotifier
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestBody:    1 << 20, // 1MB
		RequestsPerMinute: 600,
	}
}

// SaveFunc persists the session after a successful mutation.
type SaveFunc func(*core.State) error

type api struct {
	svc    *core.Service
	save   SaveFunc
	cfg    *Config
	logger *slog.Logger
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(svc *core.Service, save SaveFunc, cfg *Config, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{svc: svc, save: save, cfg: cfg, logger: logger}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	auth := tokenAuth(cfg.Token)
	protect := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoint (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)

	// Branches
	mux.Handle("GET /api/v1/branches", protect(a.handleListBranches))
	mux.Handle("POST /api/v1/branches", protect(a.handleCreateBranch))
	mux.Handle("GET /api/v1/branches/{name}", protect(a.handleGetBranch))
	mux.Handle("DELETE /api/v1/branches/{name}", protect(a.handleDiscardBranch))
	mux.Handle("GET /api/v1/branches/{name}/devices", protect(a.handleListDevices))
	mux.Handle("GET /api/v1/branches/{name}/commits", protect(a.handleBranchLog))
	mux.Handle("GET /api/v1/active", protect(a.handleGetActive))
	mux.Handle("PUT /api/v1/active", protect(a.handleSetActive))

	// Staging on the active branch
	mux.Handle("POST /api/v1/devices", protect(a.handleCreateDevice))
	mux.Handle("PUT /api/v1/devices/{id}", protect(a.handleUpdateDevice))
	mux.Handle("DELETE /api/v1/devices/{id}", protect(a.handleDeleteDevice))

	// History
	mux.Handle("GET /api/v1/commits", protect(a.handleListCommits))
	mux.Handle("POST /api/v1/commits", protect(a.handleCommit))
	mux.Handle("GET /api/v1/graph", protect(a.handleGraph))

	// Merge
	mux.Handle("GET /api/v1/merge", protect(a.handlePreviewMerge))
	mux.Handle("POST /api/v1/merge", protect(a.handleMerge))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
		cfg.Webhooks.Wait()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Branch Handlers ---

func (a *api) handleListBranches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ListBranches())
}

func (a *api) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	b, err := a.svc.CreateBranch(req.Name)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *api) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	b, err := a.svc.Branch(r.PathValue("name"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	pending, _ := a.svc.Pending(b.Name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"branch":  b,
		"state":   b.State(),
		"pending": pending,
	})
}

func (a *api) handleDiscardBranch(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DiscardBranch(r.PathValue("name")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": a.svc.ActiveBranch().Name})
}

func (a *api) handleGetActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ActiveBranch())
}

func (a *api) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := a.svc.SetActiveBranch(req.Name); err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	writeJSON(w, http.StatusOK, a.svc.ActiveBranch())
}

// deviceView is a device with its display relations resolved.
type deviceView struct {
	*models.Device
	SiteName     string `json:"site_name,omitempty"`
	RackName     string `json:"rack_name,omitempty"`
	RoleName     string `json:"role_name,omitempty"`
	PlatformName string `json:"platform_name,omitempty"`
}

func viewOf(d *models.Device) deviceView {
	v := deviceView{Device: d}
	if d.Site != nil {
		v.SiteName = d.Site.Name
	}
	if d.Rack != nil {
		v.RackName = d.Rack.Name
	}
	if d.Role != nil {
		v.RoleName = d.Role.Name
	}
	if d.Platform != nil {
		v.PlatformName = d.Platform.Name
	}
	return v
}

func (a *api) handleListDevices(w http.ResponseWriter, r *http.Request) {
	snap, err := a.svc.Snapshot(r.PathValue("name"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	devices := snap.List()
	if expr := r.URL.Query().Get("filter"); expr != "" {
		f, err := snapshot.CompileFilter(expr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if devices, err = f.Select(devices); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}

	views := make([]deviceView, len(devices))
	for i, d := range devices {
		views[i] = viewOf(d)
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *api) handleBranchLog(w http.ResponseWriter, r *http.Request) {
	commits, err := a.svc.BranchLog(r.PathValue("name"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commits)
}

// --- Staging Handlers ---

func (a *api) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var d models.Device
	if err := readJSON(r, a.cfg.MaxRequestBody, &d); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err := a.svc.StageCreate(d.ID, &d); err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": d.ID})
}

func (a *api) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var d models.Device
	if err := readJSON(r, a.cfg.MaxRequestBody, &d); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	id := r.PathValue("id")
	if err := a.svc.StageUpdate(id, &d); err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (a *api) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.StageDelete(r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- History Handlers ---

func (a *api) handleListCommits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Commits())
}

func (a *api) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := readJSON(r, a.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	commit, err := a.svc.Commit(req.Message)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	writeJSON(w, http.StatusCreated, commit)
}

func (a *api) handleGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Graph())
}

// --- Merge Handlers ---

func (a *api) handlePreviewMerge(w http.ResponseWriter, r *http.Request) {
	plan, err := a.svc.PreviewMerge(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *api) handleMerge(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.MergeActiveBranch(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if !a.persist(w) {
		return
	}
	a.cfg.Webhooks.NotifyMerge(result)
	writeJSON(w, http.StatusOK, result)
}

// --- Helpers ---

// persist saves the session, writing a 500 and returning false on failure
func (a *api) persist(w http.ResponseWriter) bool {
	if a.save == nil {
		return true
	}
	if err := a.save(a.svc.State()); err != nil {
		a.logger.Error("save session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("save session: %v", err))
		return false
	}
	return true
}

// writeServiceError maps service errors onto HTTP statuses
func (a *api) writeServiceError(w http.ResponseWriter, err error) {
	var (
		unknownBranch *core.UnknownBranchError
		dupBranch     *core.DuplicateBranchError
		protected     *core.ProtectedBranchError
		unknownEntity *core.UnknownEntityError
		dupEntity     *core.DuplicateEntityError
		mergeErr      *core.MergeError
	)

	switch {
	case errors.As(err, &unknownBranch), errors.As(err, &unknownEntity):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &dupBranch), errors.As(err, &dupEntity):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.As(err, &protected):
		writeError(w, http.StatusConflict, "protected_branch", err.Error())
	case errors.As(err, &mergeErr):
		if mergeErr.Reason == core.MergeTransactionFailed {
			a.logger.Error("merge transaction failed", "branch", mergeErr.Branch, "error", mergeErr.Err)
			writeError(w, http.StatusInternalServerError, "merge_failed", err.Error())
			return
		}
		writeError(w, http.StatusConflict, string(mergeErr.Reason), err.Error())
	case errors.Is(err, core.ErrNoSnapshot):
		writeError(w, http.StatusGone, "no_snapshot", err.Error())
	case errors.Is(err, core.ErrEmptyBranchName),
		errors.Is(err, core.ErrInvalidBranchName),
		errors.Is(err, core.ErrEmptyEntityID),
		errors.Is(err, core.ErrInvalidEntity),
		errors.Is(err, core.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		a.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
