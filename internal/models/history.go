// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrHistoryNotFound = errors.New("history item not found")
	ErrBookNotFound    = errors.New("history book not found")
)

// VerifyStatus is the outcome of reconciling an import with the library service.
type VerifyStatus string

const (
	VerifyStatusVerified      VerifyStatus = "verified"
	VerifyStatusMismatch      VerifyStatus = "mismatch"
	VerifyStatusNotFound      VerifyStatus = "not_found"
	VerifyStatusUnreachable   VerifyStatus = "unreachable"
	VerifyStatusNotConfigured VerifyStatus = "not_configured"
)

// Soft reports whether the status says nothing about the import itself.
func (s VerifyStatus) Soft() bool {
	return s == VerifyStatusUnreachable || s == VerifyStatusNotConfigured
}

// HistoryItem records a torrent added from the search flow.
type HistoryItem struct {
	ID              int64        `json:"id"`
	MamID           string       `json:"mam_id,omitempty"`
	Title           string       `json:"title"`
	Author          string       `json:"author,omitempty"`
	QBHash          string       `json:"qb_hash,omitempty"`
	DestPath        string       `json:"dest_path,omitempty"`
	ImportMode      string       `json:"import_mode,omitempty"`
	ImportedAt      *time.Time   `json:"imported_at,omitempty"`
	ABSItemID       string       `json:"abs_item_id,omitempty"`
	ABSVerifyStatus VerifyStatus `json:"abs_verify_status,omitempty"`
	ABSVerifyNote   string       `json:"abs_verify_note,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Imported reports whether an import has completed for the item.
func (h *HistoryItem) Imported() bool {
	return h != nil && h.ImportedAt != nil
}

// HistoryBook is one library item produced from a multi-book torrent.
type HistoryBook struct {
	ID              int64        `json:"id"`
	HistoryID       int64        `json:"history_id"`
	Position        int          `json:"position"`
	Subdirectory    string       `json:"subdirectory,omitempty"`
	Title           string       `json:"title"`
	Author          string       `json:"author,omitempty"`
	DestPath        string       `json:"dest_path,omitempty"`
	FilesCopied     int          `json:"files_copied"`
	FilesLinked     int          `json:"files_linked"`
	ABSItemID       string       `json:"abs_item_id,omitempty"`
	ABSVerifyStatus VerifyStatus `json:"abs_verify_status,omitempty"`
	ABSVerifyNote   string       `json:"abs_verify_note,omitempty"`
}

// ImportRecord is persisted after a successful transfer.
type ImportRecord struct {
	QBHash     string
	DestPath   string
	ImportMode string
	ImportedAt time.Time
}

// Verification is persisted after each verification attempt. Latest write wins.
type Verification struct {
	Status    VerifyStatus
	Note      string
	ABSItemID string
}

type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

const historyColumns = `id, mam_id, title, author, qb_hash, dest_path, import_mode, imported_at,
	abs_item_id, abs_verify_status, abs_verify_note, created_at, updated_at`

func (s *HistoryStore) Create(ctx context.Context, item *HistoryItem) (*HistoryItem, error) {
	if item == nil || strings.TrimSpace(item.Title) == "" {
		return nil, errors.New("history item title is required")
	}

	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO history (mam_id, title, author, qb_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullableString(strings.TrimSpace(item.MamID)),
		strings.TrimSpace(item.Title),
		nullableString(strings.TrimSpace(item.Author)),
		nullableString(strings.TrimSpace(item.QBHash)),
		now,
		now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert history item")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "last insert id")
	}
	return s.Get(ctx, id)
}

func (s *HistoryStore) Get(ctx context.Context, id int64) (*HistoryItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
	item, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, errors.Wrapf(err, "get history item %d", id)
	}
	return item, nil
}

// List returns the newest items first. A non-positive limit returns everything.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]*HistoryItem, error) {
	query := `SELECT ` + historyColumns + ` FROM history ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	defer rows.Close()

	var items []*HistoryItem
	for rows.Next() {
		item, err := scanHistory(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan history item")
		}
		items = append(items, item)
	}
	return items, errors.Wrap(rows.Err(), "iterate history")
}

// MarkImported sets imported_at and the transfer destination.
func (s *HistoryStore) MarkImported(ctx context.Context, id int64, rec ImportRecord) error {
	importedAt := rec.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE history
		 SET qb_hash = COALESCE(?, qb_hash), dest_path = ?, import_mode = ?, imported_at = ?, updated_at = ?
		 WHERE id = ?`,
		nullableString(strings.TrimSpace(rec.QBHash)),
		nullableString(rec.DestPath),
		nullableString(rec.ImportMode),
		formatTime(importedAt),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return errors.Wrapf(err, "mark history item %d imported", id)
	}
	return requireAffected(res, ErrHistoryNotFound)
}

// SetVerification overwrites the verification fields. An empty ABSItemID keeps the stored one.
func (s *HistoryStore) SetVerification(ctx context.Context, id int64, v Verification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE history
		 SET abs_verify_status = ?, abs_verify_note = ?, abs_item_id = COALESCE(?, abs_item_id), updated_at = ?
		 WHERE id = ?`,
		nullableString(string(v.Status)),
		nullableString(v.Note),
		nullableString(v.ABSItemID),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return errors.Wrapf(err, "set verification for history item %d", id)
	}
	return requireAffected(res, ErrHistoryNotFound)
}

// Delete removes the item and, through the foreign key, its books.
func (s *HistoryStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete history item %d", id)
	}
	return requireAffected(res, ErrHistoryNotFound)
}

// ReplaceBooks swaps the junction rows of a multi-book import in one transaction.
func (s *HistoryStore) ReplaceBooks(ctx context.Context, historyID int64, books []HistoryBook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_books WHERE history_id = ?`, historyID); err != nil {
		return errors.Wrap(err, "clear history books")
	}

	for i, b := range books {
		position := b.Position
		if position == 0 {
			position = i + 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history_books (history_id, position, subdirectory, title, author, dest_path, files_copied, files_linked)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			historyID,
			position,
			nullableString(b.Subdirectory),
			b.Title,
			nullableString(b.Author),
			nullableString(b.DestPath),
			b.FilesCopied,
			b.FilesLinked,
		); err != nil {
			return errors.Wrapf(err, "insert history book %d", position)
		}
	}

	return errors.Wrap(tx.Commit(), "commit history books")
}

func (s *HistoryStore) ListBooks(ctx context.Context, historyID int64) ([]HistoryBook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, history_id, position, subdirectory, title, author, dest_path, files_copied, files_linked,
		        abs_item_id, abs_verify_status, abs_verify_note
		 FROM history_books WHERE history_id = ? ORDER BY position`, historyID)
	if err != nil {
		return nil, errors.Wrap(err, "list history books")
	}
	defer rows.Close()

	var books []HistoryBook
	for rows.Next() {
		var (
			b                                     HistoryBook
			subdir, author, dest, absID, st, note sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.HistoryID, &b.Position, &subdir, &b.Title, &author, &dest,
			&b.FilesCopied, &b.FilesLinked, &absID, &st, &note); err != nil {
			return nil, errors.Wrap(err, "scan history book")
		}
		b.Subdirectory = subdir.String
		b.Author = author.String
		b.DestPath = dest.String
		b.ABSItemID = absID.String
		b.ABSVerifyStatus = VerifyStatus(st.String)
		b.ABSVerifyNote = note.String
		books = append(books, b)
	}
	return books, errors.Wrap(rows.Err(), "iterate history books")
}

func (s *HistoryStore) SetBookVerification(ctx context.Context, bookID int64, v Verification) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE history_books
		 SET abs_verify_status = ?, abs_verify_note = ?, abs_item_id = COALESCE(?, abs_item_id)
		 WHERE id = ?`,
		nullableString(string(v.Status)),
		nullableString(v.Note),
		nullableString(v.ABSItemID),
		bookID,
	)
	if err != nil {
		return errors.Wrapf(err, "set verification for history book %d", bookID)
	}
	return requireAffected(res, ErrBookNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(row scanner) (*HistoryItem, error) {
	var (
		item                                        HistoryItem
		mamID, author, hash, dest, mode, importedAt sql.NullString
		absID, status, note                         sql.NullString
		createdAt, updatedAt                        string
	)
	if err := row.Scan(&item.ID, &mamID, &item.Title, &author, &hash, &dest, &mode, &importedAt,
		&absID, &status, &note, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	item.MamID = mamID.String
	item.Author = author.String
	item.QBHash = hash.String
	item.DestPath = dest.String
	item.ImportMode = mode.String
	item.ABSItemID = absID.String
	item.ABSVerifyStatus = VerifyStatus(status.String)
	item.ABSVerifyNote = note.String
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	if importedAt.Valid && importedAt.String != "" {
		ts := parseTime(importedAt.String)
		item.ImportedAt = &ts
	}
	return &item, nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
