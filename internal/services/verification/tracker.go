// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/audiobookshelf"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/importer"
)

// ErrNotImported matches every *NotImportedError.
var ErrNotImported = errors.New("history item has not been imported")

// NotImportedError is returned when verification is requested before an import completed.
type NotImportedError struct {
	HistoryID int64
}

func (e *NotImportedError) Error() string {
	return fmt.Sprintf("history item %d has not been imported yet", e.HistoryID)
}

func (e *NotImportedError) Is(target error) bool {
	return target == ErrNotImported
}

// Library looks items up in the external catalog.
type Library interface {
	Configured() bool
	Search(ctx context.Context, title, author string) ([]audiobookshelf.Item, error)
}

// Store persists verification outcomes.
type Store interface {
	Get(ctx context.Context, id int64) (*models.HistoryItem, error)
	SetVerification(ctx context.Context, id int64, v models.Verification) error
	ListBooks(ctx context.Context, historyID int64) ([]models.HistoryBook, error)
	SetBookVerification(ctx context.Context, bookID int64, v models.Verification) error
}

// Recorder receives verification metrics.
type Recorder interface {
	ObserveVerification(status string)
}

// Outcome is the latest verification result. Unreachable and not_configured are soft.
type Outcome struct {
	Status models.VerifyStatus `json:"status"`
	Note   string              `json:"note"`
	ItemID string              `json:"item_id,omitempty"`
}

type Tracker struct {
	library  Library
	store    Store
	recorder Recorder
}

func NewTracker(library Library, store Store) *Tracker {
	return &Tracker{library: library, store: store}
}

func (t *Tracker) SetRecorder(r Recorder) {
	t.recorder = r
}

// Verify reconciles an imported history item with the library and overwrites
// the stored outcome. Items imported as several books are verified per book.
func (t *Tracker) Verify(ctx context.Context, historyID int64) (Outcome, error) {
	item, err := t.store.Get(ctx, historyID)
	if err != nil {
		return Outcome{}, err
	}
	if !item.Imported() {
		return Outcome{}, &NotImportedError{HistoryID: historyID}
	}

	books, err := t.store.ListBooks(ctx, historyID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list books: %w", err)
	}

	var outcome Outcome
	if len(books) > 0 {
		outcomes, err := t.verifyBooks(ctx, books)
		if err != nil {
			return Outcome{}, err
		}
		outcome = aggregate(outcomes)
	} else {
		outcome, err = t.lookup(ctx, item.Title, item.Author)
		if err != nil {
			return Outcome{}, err
		}
	}

	if err := t.store.SetVerification(ctx, historyID, models.Verification{
		Status:    outcome.Status,
		Note:      outcome.Note,
		ABSItemID: outcome.ItemID,
	}); err != nil {
		return Outcome{}, fmt.Errorf("store verification: %w", err)
	}
	if t.recorder != nil {
		t.recorder.ObserveVerification(string(outcome.Status))
	}

	log.Info().Int64("history_id", historyID).Str("status", string(outcome.Status)).Str("note", outcome.Note).Msg("Verification finished")
	return outcome, nil
}

// ImportCompleted verifies once right after a successful import.
func (t *Tracker) ImportCompleted(ctx context.Context, ev importer.Event) {
	if _, err := t.Verify(ctx, ev.HistoryID); err != nil {
		log.Warn().Err(err).Int64("history_id", ev.HistoryID).Msg("Post-import verification failed")
	}
}

func (t *Tracker) verifyBooks(ctx context.Context, books []models.HistoryBook) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(books))
	for _, b := range books {
		o, err := t.lookup(ctx, b.Title, b.Author)
		if err != nil {
			return nil, err
		}
		if err := t.store.SetBookVerification(ctx, b.ID, models.Verification{Status: o.Status, Note: o.Note, ABSItemID: o.ItemID}); err != nil {
			return nil, fmt.Errorf("store book verification: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// lookup maps the library response onto the status taxonomy. Only context
// cancellation is returned as an error.
func (t *Tracker) lookup(ctx context.Context, title, author string) (Outcome, error) {
	if t.library == nil || !t.library.Configured() {
		return Outcome{Status: models.VerifyStatusNotConfigured, Note: "Audiobookshelf is not configured"}, nil
	}

	items, err := t.library.Search(ctx, title, author)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		if errors.Is(err, audiobookshelf.ErrNotConfigured) {
			return Outcome{Status: models.VerifyStatusNotConfigured, Note: "Audiobookshelf is not configured"}, nil
		}
		return Outcome{Status: models.VerifyStatusUnreachable, Note: err.Error()}, nil
	}
	return Classify(title, author, items), nil
}

func aggregate(outcomes []Outcome) Outcome {
	verified := 0
	var first *Outcome
	for i := range outcomes {
		if outcomes[i].Status == models.VerifyStatusVerified {
			verified++
			continue
		}
		if first == nil {
			first = &outcomes[i]
		}
	}
	if first == nil {
		return Outcome{Status: models.VerifyStatusVerified, Note: fmt.Sprintf("all %d books found in library", len(outcomes))}
	}
	return Outcome{
		Status: first.Status,
		Note:   fmt.Sprintf("%d of %d books verified; %s", verified, len(outcomes), first.Note),
	}
}
