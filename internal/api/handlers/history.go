package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/importer"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryStore is the persistence the history endpoints need.
type HistoryStore interface {
	Create(ctx context.Context, item *models.HistoryItem) (*models.HistoryItem, error)
	Get(ctx context.Context, id int64) (*models.HistoryItem, error)
	List(ctx context.Context, limit int) ([]*models.HistoryItem, error)
	Delete(ctx context.Context, id int64) error
	ListBooks(ctx context.Context, historyID int64) ([]models.HistoryBook, error)
}

// Planner is the import planning surface used by the history endpoints.
type Planner interface {
	Candidates(ctx context.Context, historyID int64) (*importer.CandidateList, error)
	Preview(ctx context.Context, historyID int64, hash string, flatten bool) (*importer.Preview, error)
	Guard() *importer.SelectionGuard
}

type HistoryHandler struct {
	store   HistoryStore
	planner Planner
}

func NewHistoryHandler(store HistoryStore, planner Planner) *HistoryHandler {
	return &HistoryHandler{store: store, planner: planner}
}

type createHistoryRequest struct {
	MamID  string `json:"mam_id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	QBHash string `json:"qb_hash"`
}

type historyDetail struct {
	*models.HistoryItem
	Books []models.HistoryBook `json:"books"`
}

type previewRequest struct {
	Hash    string `json:"hash"`
	Flatten bool   `json:"flatten"`
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	items, err := h.store.List(r.Context(), limit)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.HistoryItem{}
	}
	RespondJSON(w, http.StatusOK, items)
}

func (h *HistoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHistoryRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		RespondError(w, http.StatusBadRequest, "title is required")
		return
	}

	item, err := h.store.Create(r.Context(), &models.HistoryItem{
		MamID:  strings.TrimSpace(req.MamID),
		Title:  strings.TrimSpace(req.Title),
		Author: strings.TrimSpace(req.Author),
		QBHash: strings.TrimSpace(req.QBHash),
	})
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, item)
}

func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := historyIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	books, err := h.store.ListBooks(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if books == nil {
		books = []models.HistoryBook{}
	}
	RespondJSON(w, http.StatusOK, historyDetail{HistoryItem: item, Books: books})
}

// Delete removes the item and its per-book rows.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := historyIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	h.planner.Guard().Forget(id)
	log.Info().Int64("history_id", id).Msg("Deleted history item")
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	id, err := historyIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.planner.Candidates(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, list)
}

// Preview selects a candidate for the row and returns its tree and flatten plan.
// A superseded selection answers 409 so the caller drops the response.
func (h *HistoryHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := historyIDParam(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Hash) == "" {
		RespondError(w, http.StatusBadRequest, "hash is required")
		return
	}

	preview, err := h.planner.Preview(r.Context(), id, strings.TrimSpace(req.Hash), req.Flatten)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, preview)
}
