// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/layout"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/matcher"
)

var (
	// ErrImportInProgress is returned while another import of the same history item runs.
	ErrImportInProgress = errors.New("import already in progress for this item")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid import request")
)

// TorrentSource is the torrent client as seen by the importer.
type TorrentSource interface {
	ListCandidates(ctx context.Context) ([]matcher.Candidate, error)
	GetCandidate(ctx context.Context, hash string) (*matcher.Candidate, error)
	GetFiles(ctx context.Context, hash string) ([]layout.FileEntry, error)
}

// HistoryStore persists import outcomes.
type HistoryStore interface {
	Get(ctx context.Context, id int64) (*models.HistoryItem, error)
	MarkImported(ctx context.Context, id int64, rec models.ImportRecord) error
	ReplaceBooks(ctx context.Context, historyID int64, books []models.HistoryBook) error
}

// Event is delivered to observers after a successful import.
type Event struct {
	HistoryID int64
	Result    Result
	Books     []models.HistoryBook
}

// Observer is notified synchronously, in registration order, after each successful import.
type Observer interface {
	ImportCompleted(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) ImportCompleted(ctx context.Context, ev Event) { f(ctx, ev) }

// Recorder receives import metrics.
type Recorder interface {
	ObserveImport(mode, outcome string, elapsed time.Duration, copied, linked int)
}

// BookRequest describes one book of a multi-book torrent.
type BookRequest struct {
	Subdirectory string `json:"subdirectory"`
	Title        string `json:"title"`
	Author       string `json:"author,omitempty"`
}

type ImportRequest struct {
	Author    string        `json:"author"`
	Title     string        `json:"title"`
	Hash      string        `json:"hash"`
	HistoryID int64         `json:"history_id"`
	Flatten   bool          `json:"flatten"`
	Books     []BookRequest `json:"books,omitempty"`
}

// Preview is the tree, detection and plan for the currently selected candidate.
type Preview struct {
	Row       RowContext             `json:"row"`
	Files     []layout.FileEntry     `json:"files"`
	Detection layout.DetectionResult `json:"detection"`
	Plan      layout.Plan            `json:"plan"`
	Warnings  []matcher.Warning      `json:"warnings"`
}

// CandidateList is the auto-match outcome for a history row.
type CandidateList struct {
	Candidates []matcher.Candidate `json:"candidates"`
	Match      matcher.Result      `json:"match"`
	Warnings   []matcher.Warning   `json:"warnings"`
}

type Options struct {
	LibraryRoot string
	Mode        Mode
}

type Service struct {
	torrents TorrentSource
	store    HistoryStore
	matcher  *matcher.Matcher
	executor *Executor
	guard    *SelectionGuard
	recorder Recorder
	opts     Options
	now      func() time.Time

	mu        sync.Mutex
	inFlight  map[int64]struct{}
	observers []Observer
}

func NewService(torrents TorrentSource, store HistoryStore, m *matcher.Matcher, executor *Executor, opts Options) *Service {
	if opts.Mode == "" {
		opts.Mode = ModeLink
	}
	return &Service{
		torrents: torrents,
		store:    store,
		matcher:  m,
		executor: executor,
		guard:    NewSelectionGuard(),
		opts:     opts,
		now:      time.Now,
		inFlight: make(map[int64]struct{}),
	}
}

// SetRecorder attaches a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Subscribe registers an observer. Delivery follows registration order.
func (s *Service) Subscribe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Guard exposes the selection guard shared with the HTTP layer.
func (s *Service) Guard() *SelectionGuard {
	return s.guard
}

// Candidates lists client torrents and auto-matches them against the history item.
func (s *Service) Candidates(ctx context.Context, historyID int64) (*CandidateList, error) {
	item, err := s.store.Get(ctx, historyID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.torrents.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}

	result, warnings := s.matcher.Match(item, candidates)
	if !result.Matched() {
		log.Debug().Int64("history_id", historyID).Int("candidates", len(candidates)).Msg("No torrent matched history item, manual selection required")
	}
	return &CandidateList{Candidates: candidates, Match: result, Warnings: warnings}, nil
}

// Preview selects hash for the row and computes its tree and plan. A preview for
// a selection superseded while it was being computed returns ErrStaleSelection.
func (s *Service) Preview(ctx context.Context, historyID int64, hash string, flatten bool) (*Preview, error) {
	rc := s.guard.Select(historyID, hash, flatten)

	item, err := s.store.Get(ctx, historyID)
	if err != nil {
		return nil, err
	}
	candidate, err := s.torrents.GetCandidate(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get torrent %s: %w", hash, err)
	}
	files, err := s.torrents.GetFiles(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get files for %s: %w", hash, err)
	}

	var preview *Preview
	err = s.guard.Apply(rc, func() {
		preview = &Preview{
			Row:       rc,
			Files:     files,
			Detection: layout.Detect(files),
			Plan:      layout.BuildPlan(files, flatten),
			Warnings:  s.matcher.Validate(item, *candidate),
		}
	})
	if err != nil {
		log.Debug().Int64("history_id", historyID).Str("hash", hash).Uint64("generation", rc.Generation).Msg("Discarding stale preview")
		return nil, err
	}
	return preview, nil
}

// Import transfers the torrent into the library and records the outcome.
// Only one import per history item may run at a time.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !s.begin(req.HistoryID) {
		return nil, ErrImportInProgress
	}
	defer s.end(req.HistoryID)

	start := s.now()
	result, books, err := s.run(ctx, req)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.record("failed", elapsed, nil)
		return nil, err
	}
	s.record("completed", elapsed, result)

	s.notify(ctx, Event{HistoryID: req.HistoryID, Result: *result, Books: books})
	return result, nil
}

func (s *Service) run(ctx context.Context, req ImportRequest) (*Result, []models.HistoryBook, error) {
	item, err := s.store.Get(ctx, req.HistoryID)
	if err != nil {
		return nil, nil, err
	}

	candidate, err := s.torrents.GetCandidate(ctx, req.Hash)
	if err != nil {
		return nil, nil, fmt.Errorf("get torrent %s: %w", req.Hash, err)
	}
	for _, w := range s.matcher.Validate(item, *candidate) {
		log.Warn().Int64("history_id", req.HistoryID).Str("hash", candidate.Hash).Str("code", string(w.Code)).Msg(w.Message)
	}

	files, err := s.torrents.GetFiles(ctx, req.Hash)
	if err != nil {
		return nil, nil, fmt.Errorf("get files for %s: %w", req.Hash, err)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("%w: torrent %s has no files", ErrInvalidRequest, req.Hash)
	}

	sourceRoot := sourceRootFor(candidate)
	mode := s.opts.Mode

	var (
		result *Result
		books  []models.HistoryBook
	)
	if len(req.Books) == 0 {
		dest := s.destination(req.Author, req.Title)
		result, err = s.executor.Execute(ctx, Job{
			SourceRoot: sourceRoot,
			DestRoot:   dest,
			Transfers:  layout.BuildPlan(files, req.Flatten).Transfers(),
			Mode:       mode,
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		result = &Result{DestPath: filepath.Join(s.opts.LibraryRoot, sanitizeSegment(req.Author, unknownAuthor)), ImportMode: mode}
		for i, b := range req.Books {
			author := b.Author
			if strings.TrimSpace(author) == "" {
				author = req.Author
			}
			sub := layout.Subtree(files, b.Subdirectory)
			if len(sub) == 0 {
				return nil, nil, fmt.Errorf("%w: no files under %q", ErrInvalidRequest, b.Subdirectory)
			}
			dest := s.destination(author, b.Title)
			r, err := s.executor.Execute(ctx, Job{
				SourceRoot: filepath.Join(sourceRoot, filepath.FromSlash(layout.NormalizePath(b.Subdirectory))),
				DestRoot:   dest,
				Transfers:  layout.BuildPlan(sub, req.Flatten).Transfers(),
				Mode:       mode,
			})
			if err != nil {
				return nil, nil, err
			}
			result.FilesCopied += r.FilesCopied
			result.FilesLinked += r.FilesLinked
			books = append(books, models.HistoryBook{
				HistoryID:    req.HistoryID,
				Position:     i + 1,
				Subdirectory: b.Subdirectory,
				Title:        b.Title,
				Author:       author,
				DestPath:     dest,
				FilesCopied:  r.FilesCopied,
				FilesLinked:  r.FilesLinked,
			})
		}
	}

	// A single-book import clears books left by an earlier multi-book import.
	if err := s.store.ReplaceBooks(ctx, req.HistoryID, books); err != nil {
		return nil, nil, fmt.Errorf("record books: %w", err)
	}
	if err := s.store.MarkImported(ctx, req.HistoryID, models.ImportRecord{
		QBHash:     candidate.Hash,
		DestPath:   result.DestPath,
		ImportMode: string(mode),
		ImportedAt: s.now(),
	}); err != nil {
		return nil, nil, fmt.Errorf("record import: %w", err)
	}

	return result, books, nil
}

func (s *Service) begin(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) end(id int64) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

func (s *Service) notify(ctx context.Context, ev Event) {
	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.ImportCompleted(ctx, ev)
	}
}

func (s *Service) record(outcome string, elapsed time.Duration, r *Result) {
	if s.recorder == nil {
		return
	}
	var copied, linked int
	if r != nil {
		copied, linked = r.FilesCopied, r.FilesLinked
	}
	s.recorder.ObserveImport(string(s.opts.Mode), outcome, elapsed, copied, linked)
}

func (s *Service) destination(author, title string) string {
	return filepath.Join(s.opts.LibraryRoot, sanitizeSegment(author, unknownAuthor), sanitizeSegment(title, "Untitled"))
}

func validateRequest(req ImportRequest) error {
	switch {
	case req.HistoryID <= 0:
		return fmt.Errorf("%w: history_id is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Hash) == "":
		return fmt.Errorf("%w: hash is required", ErrInvalidRequest)
	case strings.TrimSpace(req.Title) == "" && len(req.Books) == 0:
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	for i, b := range req.Books {
		if strings.TrimSpace(b.Title) == "" {
			return fmt.Errorf("%w: book %d has no title", ErrInvalidRequest, i+1)
		}
	}
	return nil
}

// sourceRootFor returns the directory the client's file names are relative to.
func sourceRootFor(c *matcher.Candidate) string {
	if c.SavePath != "" {
		return c.SavePath
	}
	return filepath.Dir(c.ContentPath)
}
