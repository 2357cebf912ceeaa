// Package rest exposes the control surface of the update service: trigger
// an update, inspect its progress, and request cancellation.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/update_fetcher/internal/logctx"
	"github.com/italolelis/update_fetcher/internal/storage"
	"github.com/italolelis/update_fetcher/internal/update"
)

// UpdateService is the slice of the manager the handler needs.
type UpdateService interface {
	Trigger(ctx context.Context, artifact string) (string, error)
	Status(taskID string) (update.Snapshot, bool)
	Cancel(taskID string) bool
}

// UpdateHandler serves the update control API.
type UpdateHandler struct {
	svc  UpdateService
	hist storage.UpdateReadRepository
}

// NewUpdateHandler creates the handler.
func NewUpdateHandler(svc UpdateService, hist storage.UpdateReadRepository) *UpdateHandler {
	return &UpdateHandler{svc: svc, hist: hist}
}

// Routes mounts the update endpoints.
func (h *UpdateHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/updates", h.trigger)
	r.Get("/updates", h.history)
	r.Get("/updates/{taskID}", h.status)
	r.Post("/updates/{taskID}/cancel", h.cancel)

	return r
}

type triggerRequest struct {
	Artifact string `json:"artifact"`
}

type triggerResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	TaskID      string `json:"task_id"`
	Artifact    string `json:"artifact"`
	State       string `json:"state"`
	Percent     int    `json:"percent"`
	Retries     int    `json:"retries"`
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

func (h *UpdateHandler) trigger(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Artifact == "" {
		http.Error(w, "request must name an artifact", http.StatusBadRequest)

		return
	}

	taskID, err := h.svc.Trigger(r.Context(), req.Artifact)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyApplied):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.Error("failed to trigger update", "artifact", req.Artifact, "err", err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		}

		return
	}

	writeJSON(w, http.StatusAccepted, triggerResponse{TaskID: taskID})
}

func (h *UpdateHandler) status(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	snap, ok := h.svc.Status(taskID)
	if !ok {
		http.Error(w, "unknown task", http.StatusNotFound)

		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

func (h *UpdateHandler) cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	if !h.svc.Cancel(taskID) {
		http.Error(w, "unknown task", http.StatusNotFound)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *UpdateHandler) history(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	records, err := h.hist.GetUpdates()
	if err != nil {
		logger.Error("failed to read update history", "err", err)
		http.Error(w, "failed to read update history", http.StatusInternalServerError)

		return
	}

	// An empty history is still a list, not null.
	if records == nil {
		records = []storage.UpdateRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

func snapshotResponse(snap update.Snapshot) statusResponse {
	return statusResponse{
		TaskID:      snap.ID,
		Artifact:    snap.Artifact,
		State:       snap.State.String(),
		Percent:     snap.Percent,
		Retries:     snap.Retries,
		Description: snap.Description,
		Error:       snap.Err,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
