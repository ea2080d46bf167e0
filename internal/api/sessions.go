package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/registry"
	"github.com/bobarin/clipmix/internal/variation"
	"github.com/google/uuid"
)

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	sess := &models.Session{
		ID:        uuid.New(),
		Selection: models.Selection{MaxSelected: h.cfg.MaxSelected},
		CreatedAt: now,
		UpdatedAt: now,
	}
	sess.WorkDir = filepath.Join(h.cfg.WorkDir, sess.ID.String())

	if _, err := h.registryFor(sess); err != nil {
		respondErr(w, err, "Failed to create job directory")
		return
	}

	if err := h.store.SaveSession(r.Context(), sess); err != nil {
		respondErr(w, err, "Failed to create session")
		return
	}

	respondJSON(w, http.StatusCreated, h.sessionResponse(sess))
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
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

	respondJSON(w, http.StatusOK, h.sessionResponse(sess))
}

func (h *Handler) sessionResponse(sess *models.Session) models.SessionResponse {
	view := *sess
	view.Selection = h.selectionFor(sess)
	return models.SessionResponse{
		Session:        view,
		VariationCount: variation.Count(len(sess.Intros), len(sess.Products), len(sess.Outros), false),
	}
}

// UploadClip handles POST /v1/sessions/{id}/clips?role=intro|product|outro|music
// The request is multipart with the clip in the "file" field. The upload is
// streamed to the job directory without buffering the whole file in memory.
func (h *Handler) UploadClip(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	role, ok := models.ParseRole(r.URL.Query().Get("role"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid role. Allowed: intro, product, outro, music")
		return
	}

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		respondErr(w, err, "Failed to get session")
		return
	}

	reg, err := h.registryFor(sess)
	if err != nil {
		respondErr(w, err, "Failed to open job directory")
		return
	}

	// Reject before reading the body when the pool is already full
	if err := reg.Admit(role, len(sess.Pool(role))); err != nil {
		respondErr(w, err, "Failed to admit clip")
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "Expected multipart/form-data body")
		return
	}

	var (
		ref   models.ClipRef
		found bool
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			respondError(w, http.StatusBadRequest, "Malformed multipart body")
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		ref, err = reg.Ingest(r.Context(), part, part.FileName(), role)
		part.Close()
		if err != nil {
			respondErr(w, err, "Failed to store clip")
			return
		}
		found = true
		break
	}
	if !found {
		respondError(w, http.StatusBadRequest, "Missing \"file\" field")
		return
	}

	var replaced *models.ClipRef
	_, err = h.store.UpdateSession(r.Context(), sessionID, func(s *models.Session) error {
		replaced = nil
		switch role {
		case models.RoleMusic:
			// Batches snapshot the music bed by path; once one exists the old
			// file stays until the session directory is swept
			if len(s.BatchIDs) == 0 {
				replaced = s.Music
			}
			s.Music = &ref
			return nil
		case models.RoleIntro:
			if err := reg.Admit(role, len(s.Intros)); err != nil {
				return err
			}
			s.Intros = append(s.Intros, ref)
		case models.RoleOutro:
			if err := reg.Admit(role, len(s.Outros)); err != nil {
				return err
			}
			s.Outros = append(s.Outros, ref)
		case models.RoleProduct:
			if err := reg.Admit(role, len(s.Products)); err != nil {
				return err
			}
			s.Products = append(s.Products, ref)
			// An initialized selection picks up new products as available
			if !s.Selection.IsEmpty() {
				s.Selection = registry.SyncSelection(s.Selection, s.Products)
			}
		}
		return nil
	})
	if err != nil {
		os.Remove(ref.Path)
		respondErr(w, err, "Failed to save clip")
		return
	}

	if replaced != nil {
		if err := os.Remove(replaced.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[API] Failed to remove replaced music %s: %v", replaced.Path, err)
		}
	}

	respondJSON(w, http.StatusCreated, ref)
}

// SelectProduct handles POST /v1/sessions/{id}/selection/select
func (h *Handler) SelectProduct(w http.ResponseWriter, r *http.Request) {
	h.updateSelection(w, r, func(sel models.Selection, req models.SelectionRequest) (models.Selection, error) {
		return registry.MoveToSelected(sel, req.ClipID)
	})
}

// DeselectProduct handles POST /v1/sessions/{id}/selection/deselect
func (h *Handler) DeselectProduct(w http.ResponseWriter, r *http.Request) {
	h.updateSelection(w, r, func(sel models.Selection, req models.SelectionRequest) (models.Selection, error) {
		return registry.MoveToAvailable(sel, req.ClipID)
	})
}

func (h *Handler) updateSelection(w http.ResponseWriter, r *http.Request, op func(models.Selection, models.SelectionRequest) (models.Selection, error)) {
	sessionID, ok := urlID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var req models.SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClipID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "clip_id is required")
		return
	}

	sess, err := h.store.UpdateSession(r.Context(), sessionID, func(s *models.Session) error {
		next, err := op(h.selectionFor(s), req)
		if err != nil {
			return err
		}
		s.Selection = next
		return nil
	})
	if err != nil {
		respondErr(w, err, "Failed to update selection")
		return
	}

	respondJSON(w, http.StatusOK, sess.Selection)
}

// ReorderSelection handles PUT /v1/sessions/{id}/selection/order
func (h *Handler) ReorderSelection(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var req models.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := h.store.UpdateSession(r.Context(), sessionID, func(s *models.Session) error {
		next, err := registry.Reorder(h.selectionFor(s), req.ClipIDs)
		if err != nil {
			return err
		}
		s.Selection = next
		return nil
	})
	if err != nil {
		respondErr(w, err, "Failed to reorder selection")
		return
	}

	respondJSON(w, http.StatusOK, sess.Selection)
}
