package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bobarin/clipmix/internal/batch"
	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/registry"
	"github.com/bobarin/clipmix/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Enqueuer hands a created batch to the render worker.
type Enqueuer interface {
	EnqueueRenderBatch(ctx context.Context, sessionID, batchID uuid.UUID) error
	PendingRenderBatches(ctx context.Context) (int64, error)
}

// HandlerConfig carries the limits and batch defaults the handlers apply.
type HandlerConfig struct {
	WorkDir         string // session job dirs are created under here
	MaxUploadBytes  int64
	MaxClipsPerRole int
	MaxSelected     int
	Defaults        models.BatchOptions // used for fields a request leaves unset
}

type Handler struct {
	store  session.Store
	queue  Enqueuer
	prober registry.Prober // Optional: nil skips duration probing on upload
	cfg    HandlerConfig
}

func NewHandler(store session.Store, q Enqueuer, prober registry.Prober, cfg HandlerConfig) *Handler {
	if cfg.MaxSelected <= 0 {
		cfg.MaxSelected = registry.DefaultMaxSelected
	}
	return &Handler{
		store:  store,
		queue:  q,
		prober: prober,
		cfg:    cfg,
	}
}

func (h *Handler) registryFor(sess *models.Session) (*registry.Registry, error) {
	return registry.New(sess.WorkDir, registry.Options{
		MaxUploadBytes:  h.cfg.MaxUploadBytes,
		MaxClipsPerRole: h.cfg.MaxClipsPerRole,
		Prober:          h.prober,
	})
}

// selectionFor returns the session's selection, initializing it from the
// product pool on first use.
func (h *Handler) selectionFor(sess *models.Session) models.Selection {
	maxSelected := sess.Selection.MaxSelected
	if maxSelected <= 0 {
		maxSelected = h.cfg.MaxSelected
	}
	return registry.InitializeSelection(sess.Selection, sess.Products, maxSelected)
}

func urlID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrBatchNotFound),
		errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrCapacityExceeded),
		errors.Is(err, registry.ErrPoolFull),
		errors.Is(err, batch.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidOrder),
		errors.Is(err, registry.ErrUnsupportedFormat),
		errors.Is(err, registry.ErrTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with its mapped status. Internal errors are logged and
// not echoed to the client.
func respondErr(w http.ResponseWriter, err error, internalMessage string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s: %v", internalMessage, err)
		respondError(w, status, internalMessage)
		return
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.PendingRenderBatches(r.Context())
	if err != nil {
		log.Printf("[API] Health check: queue unavailable: %v", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "queue unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "queued_batches": pending})
}
