package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bobarin/clipmix/internal/batch"
	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/variation"
	"github.com/google/uuid"
)

// batchInput snapshots the session state a batch renders from.
func (h *Handler) batchInput(sess *models.Session, opts models.BatchOptions) batch.Input {
	return batch.Input{
		Intros:    sess.Intros,
		Products:  sess.Products,
		Outros:    sess.Outros,
		Selection: h.selectionFor(sess),
		Music:     sess.Music,
		Options:   opts,
	}
}

// ListVariations handles GET /v1/sessions/{id}/variations
// Query params:
//   - count:     how many variations to return (default: all)
//   - three_way: include the product dimension (intro × product × outro)
func (h *Handler) ListVariations(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		respondErr(w, err, "Failed to get session")
		return
	}

	threeWay, _ := strconv.ParseBool(r.URL.Query().Get("three_way"))
	total := variation.Count(len(sess.Intros), len(sess.Products), len(sess.Outros), threeWay)

	count := total
	if c := r.URL.Query().Get("count"); c != "" {
		parsed, err := strconv.Atoi(c)
		if err != nil {
			respondError(w, http.StatusBadRequest, "count must be an integer")
			return
		}
		count = parsed
	}

	opts := h.cfg.Defaults
	opts.Count = count
	opts.ThreeWay = threeWay
	opts.UseMusic = sess.Music != nil

	set := batch.Plan(h.batchInput(sess, opts))
	if set == nil {
		set = []models.Variation{}
	}

	respondJSON(w, http.StatusOK, models.VariationsResponse{
		Total:      total,
		Variations: set,
	})
}

// CreateBatch handles POST /v1/sessions/{id}/batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var req models.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	opts := h.cfg.Defaults
	opts.ThreeWay = req.ThreeWay
	if req.Policy != nil {
		switch p := models.AssemblyPolicy(*req.Policy); p {
		case models.PolicyCurated, models.PolicyBudgetSlice:
			opts.Policy = p
		default:
			respondError(w, http.StatusBadRequest, "Invalid policy. Allowed: curated, budget_slice")
			return
		}
	}

	b := &models.Batch{
		ID:        uuid.New(),
		SessionID: sessionID,
		Status:    models.BatchStatusQueued,
		CreatedAt: time.Now(),
	}

	// The batch carries a copy of the pools and selection it was planned from,
	// so the worker renders exactly what was previewed.
	_, err := h.store.UpdateSession(r.Context(), sessionID, func(s *models.Session) error {
		opts.UseMusic = s.Music != nil
		if req.UseMusic != nil {
			opts.UseMusic = *req.UseMusic && s.Music != nil
		}
		opts.Count = req.Count
		if opts.Count <= 0 {
			opts.Count = variation.Count(len(s.Intros), len(s.Products), len(s.Outros), opts.ThreeWay)
		}

		in := h.batchInput(s, opts)
		set := batch.Plan(in)
		if len(set) == 0 {
			return batch.ErrNotReady
		}

		s.Selection = in.Selection
		s.BatchIDs = append(s.BatchIDs, b.ID)
		b.Source = in.Snapshot()
		b.Options = opts
		b.Total = len(set)
		return nil
	})
	if err != nil {
		respondErr(w, err, "Failed to create batch")
		return
	}

	if err := h.store.SaveBatch(r.Context(), b); err != nil {
		respondErr(w, err, "Failed to save batch")
		return
	}

	if err := h.queue.EnqueueRenderBatch(r.Context(), sessionID, b.ID); err != nil {
		respondErr(w, err, "Failed to enqueue batch")
		return
	}

	respondJSON(w, http.StatusAccepted, models.CreateBatchResponse{
		BatchID: b.ID,
		Status:  b.Status,
		Total:   b.Total,
	})
}

// getSessionBatch loads a batch and checks that it belongs to the session in the URL.
func (h *Handler) getSessionBatch(w http.ResponseWriter, r *http.Request) (*models.Batch, bool) {
	sessionID, ok := urlID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return nil, false
	}
	batchID, ok := urlID(r, "batchId")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid batch ID")
		return nil, false
	}

	b, err := h.store.GetBatch(r.Context(), batchID)
	if err != nil {
		respondErr(w, err, "Failed to get batch")
		return nil, false
	}
	if b.SessionID != sessionID {
		respondError(w, http.StatusNotFound, "Batch not found")
		return nil, false
	}
	return b, true
}

// GetBatch handles GET /v1/sessions/{id}/batches/{batchId}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := h.getSessionBatch(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// DownloadBatch handles GET /v1/sessions/{id}/batches/{batchId}/download
// Redirects to the delivered archive when a delivery backend uploaded it,
// otherwise streams the archive from the job directory.
func (h *Handler) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := h.getSessionBatch(w, r)
	if !ok {
		return
	}

	if b.Status != models.BatchStatusCompleted || b.Archive == nil {
		respondError(w, http.StatusConflict, fmt.Sprintf("Archive not ready (batch is %s)", b.Status))
		return
	}

	if b.DownloadURL != nil {
		http.Redirect(w, r, *b.DownloadURL, http.StatusTemporaryRedirect)
		return
	}

	f, err := os.Open(b.Archive.Path)
	if err != nil {
		respondError(w, http.StatusNotFound, "Archive no longer available")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(b.Archive.Path)))
	http.ServeContent(w, r, filepath.Base(b.Archive.Path), info.ModTime(), f)
}
