// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package importer

import (
	"errors"
	"sync"
)

// ErrStaleSelection is returned when a newer selection replaced the one a result was computed for.
var ErrStaleSelection = errors.New("selection superseded by a newer one")

// RowContext carries the per-row state of one preview or import request.
type RowContext struct {
	HistoryID  int64  `json:"history_id"`
	Hash       string `json:"hash"`
	Flatten    bool   `json:"flatten"`
	Generation uint64 `json:"generation"`
}

// SelectionGuard hands out generations per history row. Only results computed
// for the latest generation may be applied.
type SelectionGuard struct {
	mu      sync.Mutex
	current map[int64]uint64
	next    uint64
}

func NewSelectionGuard() *SelectionGuard {
	return &SelectionGuard{current: make(map[int64]uint64)}
}

// Select records a new selection for the row and returns its context.
func (g *SelectionGuard) Select(historyID int64, hash string, flatten bool) RowContext {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next++
	g.current[historyID] = g.next
	return RowContext{HistoryID: historyID, Hash: hash, Flatten: flatten, Generation: g.next}
}

// IsCurrent reports whether rc is still the latest selection for its row.
func (g *SelectionGuard) IsCurrent(rc RowContext) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.current[rc.HistoryID] == rc.Generation
}

// Apply runs fn only while rc is current.
func (g *SelectionGuard) Apply(rc RowContext, fn func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current[rc.HistoryID] != rc.Generation {
		return ErrStaleSelection
	}
	fn()
	return nil
}

// Forget drops the row, e.g. after the history item is deleted.
func (g *SelectionGuard) Forget(historyID int64) {
	g.mu.Lock()
	delete(g.current, historyID)
	g.mu.Unlock()
}
