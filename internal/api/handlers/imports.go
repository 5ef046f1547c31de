package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/importer"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/verification"
)

type Importer interface {
	Import(ctx context.Context, req importer.ImportRequest) (*importer.Result, error)
}

type Verifier interface {
	Verify(ctx context.Context, historyID int64) (verification.Outcome, error)
}

type ImportHandler struct {
	importer Importer
	verifier Verifier
}

func NewImportHandler(imp Importer, verifier Verifier) *ImportHandler {
	return &ImportHandler{importer: imp, verifier: verifier}
}

type verifyRequest struct {
	HistoryID int64 `json:"history_id"`
}

type verificationBody struct {
	Status models.VerifyStatus `json:"status"`
	Note   string              `json:"note"`
}

type verifyResponse struct {
	OK           bool             `json:"ok"`
	Verification verificationBody `json:"verification"`
}

func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importer.ImportRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.importer.Import(r.Context(), req)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	log.Info().Int64("history_id", req.HistoryID).Str("dest", result.DestPath).Msg("Import finished")
	RespondJSON(w, http.StatusOK, result)
}

func (h *ImportHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.HistoryID <= 0 {
		RespondError(w, http.StatusBadRequest, "history_id is required")
		return
	}

	outcome, err := h.verifier.Verify(r.Context(), req.HistoryID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, verifyResponse{
		OK:           true,
		Verification: verificationBody{Status: outcome.Status, Note: outcome.Note},
	})
}
