// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/internal/qbittorrent"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/importer"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/verification"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RespondJSON writes data as JSON with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// RespondError writes {"detail": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Detail: message})
}

// RespondServiceError maps a service error to its HTTP status.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request rejected")
	}
	RespondError(w, status, err.Error())
}

func StatusFor(err error) int {
	var transferErr *importer.TransferError
	switch {
	case errors.Is(err, models.ErrHistoryNotFound),
		errors.Is(err, models.ErrBookNotFound),
		errors.Is(err, qbittorrent.ErrTorrentNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrImportInProgress),
		errors.Is(err, importer.ErrStaleSelection),
		errors.Is(err, verification.ErrNotImported):
		return http.StatusConflict
	case errors.Is(err, importer.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &transferErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func historyIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid history id %q", raw)
	}
	return id, nil
}
