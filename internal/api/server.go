// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/internal/api/handlers"
	"github.com/raygan/mam-audiofinder-sub001/internal/metrics"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	Version  string
	BaseURL  string
	History  handlers.HistoryStore
	Planner  handlers.Planner
	Importer handlers.Importer
	Verifier handlers.Verifier
	Files    handlers.FileSource
	Covers   handlers.CoverService
	DB       handlers.Pinger
	Metrics  *metrics.Manager
}

// NewRouter wires every endpoint under the configured base URL.
func NewRouter(deps Dependencies) (http.Handler, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, fmt.Errorf("create compression adapter: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	history := handlers.NewHistoryHandler(deps.History, deps.Planner)
	imports := handlers.NewImportHandler(deps.Importer, deps.Verifier)
	torrents := handlers.NewTorrentsHandler(deps.Files)
	coversHandler := handlers.NewCoversHandler(deps.Covers)
	health := handlers.NewHealthHandler(deps.DB, deps.Version)

	apiRouter := chi.NewRouter()
	apiRouter.Get("/healthz", health.Healthz)
	if deps.Metrics != nil {
		apiRouter.Handle("/metrics", deps.Metrics.Handler())
	}

	apiRouter.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(compress)

			r.Get("/torrents/{hash}/tree", torrents.Tree)

			r.Route("/history", func(r chi.Router) {
				r.Get("/", history.List)
				r.Post("/", history.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", history.Get)
					r.Delete("/", history.Delete)
					r.Get("/candidates", history.Candidates)
					r.Post("/preview", history.Preview)
				})
			})

			r.Post("/import", imports.Import)
			r.Post("/verify", imports.Verify)
			r.Post("/covers", coversHandler.Fetch)
		})

		// Streaming and binary responses stay uncompressed.
		r.Post("/covers/batch", coversHandler.Batch)
		r.Get("/covers/{itemID}/thumbnail", coversHandler.Thumbnail)
	})

	base := normalizeBaseURL(deps.BaseURL)
	if base == "/" {
		r.Mount("/", apiRouter)
	} else {
		r.Mount(strings.TrimSuffix(base, "/"), apiRouter)
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, base, http.StatusTemporaryRedirect)
		})
	}
	return r, nil
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return "/"
	}
	return "/" + strings.Trim(base, "/") + "/"
}

// Server runs the HTTP API until its context is cancelled.
type Server struct {
	server *http.Server
}

func NewServer(host string, port int, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}
