package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/go-chi/chi/v5"

	"github.com/raygan/mam-audiofinder-sub001/internal/services/layout"
)

const detectionCacheTTL = 10 * time.Minute

type FileSource interface {
	GetFiles(ctx context.Context, hash string) ([]layout.FileEntry, error)
}

type TorrentsHandler struct {
	files     FileSource
	detection *ttlcache.Cache[uint64, layout.DetectionResult]
}

func NewTorrentsHandler(files FileSource) *TorrentsHandler {
	return &TorrentsHandler{
		files:     files,
		detection: ttlcache.New(ttlcache.Options[uint64, layout.DetectionResult]{}.SetDefaultTTL(detectionCacheTTL)),
	}
}

type treeResponse struct {
	Files []layout.FileEntry `json:"files"`
	layout.DetectionResult
}

// Tree returns the file listing of a torrent with its disc-structure detection.
// Detection results are cached by listing fingerprint.
func (h *TorrentsHandler) Tree(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(chi.URLParam(r, "hash"))
	if hash == "" {
		RespondError(w, http.StatusBadRequest, "hash is required")
		return
	}

	files, err := h.files.GetFiles(r.Context(), hash)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}

	key := layout.Fingerprint(files)
	detection, ok := h.detection.Get(key)
	if !ok {
		detection = layout.Detect(files)
		h.detection.Set(key, detection, ttlcache.DefaultTTL)
	}

	RespondJSON(w, http.StatusOK, treeResponse{Files: files, DetectionResult: detection})
}
