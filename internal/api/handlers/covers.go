package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/internal/services/audiobookshelf"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/covers"
)

const maxBatchItems = 200

type CoverService interface {
	Fetch(ctx context.Context, req covers.Request) covers.Result
	Visible(ctx context.Context, reqs []covers.Request) <-chan covers.Result
	Thumbnail(ctx context.Context, itemID string) (string, error)
}

type CoversHandler struct {
	covers CoverService
}

func NewCoversHandler(svc CoverService) *CoversHandler {
	return &CoversHandler{covers: svc}
}

type batchRequest struct {
	Items []covers.Request `json:"items"`
}

// Fetch resolves one cover. Failures are reported inside the result, never as an HTTP error.
func (h *CoversHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req covers.Request
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, h.covers.Fetch(r.Context(), req))
}

// Batch streams one NDJSON line per item as each fetch completes.
func (h *CoversHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Items) > maxBatchItems {
		RespondError(w, http.StatusBadRequest, "too many items")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for res := range h.covers.Visible(r.Context(), req.Items) {
		if err := enc.Encode(res); err != nil {
			log.Debug().Err(err).Msg("Cover stream closed by client")
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *CoversHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	path, err := h.covers.Thumbnail(r.Context(), itemID)
	if err != nil {
		switch {
		case errors.Is(err, audiobookshelf.ErrCoverNotFound):
			RespondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, audiobookshelf.ErrNotConfigured), errors.Is(err, covers.ErrThumbnailsDisabled):
			RespondError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, audiobookshelf.ErrUnreachable):
			RespondError(w, http.StatusBadGateway, err.Error())
		default:
			RespondServiceError(w, r, err)
		}
		return
	}

	f, err := os.Open(path)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
