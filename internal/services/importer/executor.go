// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/raygan/mam-audiofinder-sub001/internal/services/layout"
)

// Mode selects how files reach the library.
type Mode string

const (
	ModeCopy Mode = "copy"
	ModeLink Mode = "link"
	ModeMove Mode = "move"
)

// ParseMode accepts copy, link, hardlink or move. Empty defaults to link.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "link", "hardlink":
		return ModeLink, nil
	case "copy":
		return ModeCopy, nil
	case "move":
		return ModeMove, nil
	default:
		return "", fmt.Errorf("unknown import mode %q", s)
	}
}

// State tracks a single import invocation. Completed and Failed are terminal.
type State int

const (
	StatePending State = iota
	StateInProgress
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is produced once per successful execution.
type Result struct {
	DestPath    string `json:"dest"`
	FilesCopied int    `json:"files_copied"`
	FilesLinked int    `json:"files_linked"`
	ImportMode  Mode   `json:"import_mode"`
}

// TransferError aborts an import. Files transferred before the failure stay in place.
type TransferError struct {
	Op          string
	Mode        Mode
	Source      string
	Dest        string
	Transferred int
	Total       int
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s -> %s failed after %d of %d files (already transferred files were not rolled back): %v",
		e.Op, e.Source, e.Dest, e.Transferred, e.Total, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Job is one resolved transfer plan. Transfer sources are relative to SourceRoot
// and destinations relative to DestRoot.
type Job struct {
	SourceRoot string
	DestRoot   string
	Transfers  []layout.Transfer
	Mode       Mode
}

// Executor materializes jobs on a filesystem. It holds no per-job state so
// imports of different items can run concurrently.
type Executor struct {
	fs     afero.Fs
	linker HardLinker
}

// NewExecutor uses fs for all file access. Hardlinks are attempted only when fs
// implements HardLinker; otherwise link mode copies every file.
func NewExecutor(fs afero.Fs) *Executor {
	e := &Executor{fs: fs}
	if l, ok := fs.(HardLinker); ok {
		e.linker = l
	}
	return e
}

// Execute runs the job. The first irrecoverable per-file failure aborts with a
// *TransferError.
func (e *Executor) Execute(ctx context.Context, job Job) (*Result, error) {
	state := StatePending
	total := len(job.Transfers)
	result := &Result{DestPath: job.DestRoot, ImportMode: job.Mode}

	fail := func(op, src, dst string, err error) (*Result, error) {
		state = StateFailed
		log.Error().
			Err(err).
			Str("state", state.String()).
			Str("mode", string(job.Mode)).
			Str("source", src).
			Str("dest", dst).
			Int("transferred", result.FilesCopied).
			Int("total", total).
			Msg("Import transfer failed")
		return nil, &TransferError{Op: op, Mode: job.Mode, Source: src, Dest: dst, Transferred: result.FilesCopied, Total: total, Err: err}
	}

	switch job.Mode {
	case ModeCopy, ModeLink, ModeMove:
	default:
		return fail("validate", job.SourceRoot, job.DestRoot, fmt.Errorf("unknown import mode %q", job.Mode))
	}
	if strings.TrimSpace(job.DestRoot) == "" {
		return fail("validate", job.SourceRoot, job.DestRoot, fmt.Errorf("destination root is empty"))
	}

	state = StateInProgress
	log.Debug().Str("state", state.String()).Str("mode", string(job.Mode)).Str("dest", job.DestRoot).Int("files", total).Msg("Starting import")

	if err := e.fs.MkdirAll(job.DestRoot, 0o755); err != nil {
		return fail("mkdir", job.SourceRoot, job.DestRoot, err)
	}

	for _, tr := range job.Transfers {
		src := filepath.Join(job.SourceRoot, filepath.FromSlash(tr.Source))
		dst, err := resolveDest(job.DestRoot, tr.Dest)
		if err != nil {
			return fail("resolve", src, tr.Dest, err)
		}

		if err := ctx.Err(); err != nil {
			return fail("cancel", src, dst, err)
		}

		if err := e.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fail("mkdir", src, dst, err)
		}
		if err := removeExisting(e.fs, dst); err != nil {
			return fail("replace", src, dst, err)
		}

		switch job.Mode {
		case ModeLink:
			if e.linker != nil {
				linkErr := e.linker.Link(src, dst)
				if linkErr == nil {
					result.FilesLinked++
					result.FilesCopied++
					continue
				}
				log.Debug().Err(linkErr).Str("source", src).Msg("Hardlink failed, falling back to copy")
			}
			if err := copyFile(e.fs, src, dst); err != nil {
				return fail("copy", src, dst, err)
			}
		case ModeCopy:
			if err := copyFile(e.fs, src, dst); err != nil {
				return fail("copy", src, dst, err)
			}
		case ModeMove:
			if err := moveFile(e.fs, src, dst); err != nil {
				return fail("move", src, dst, err)
			}
		}
		result.FilesCopied++
	}

	state = StateCompleted
	log.Info().
		Str("state", state.String()).
		Str("mode", string(job.Mode)).
		Str("dest", job.DestRoot).
		Int("files_copied", result.FilesCopied).
		Int("files_linked", result.FilesLinked).
		Msg("Import completed")
	return result, nil
}

// resolveDest joins rel under root and refuses paths that escape it.
func resolveDest(root, rel string) (string, error) {
	rel = layout.NormalizePath(rel)
	if rel == "" {
		return "", fmt.Errorf("empty destination name")
	}
	dst := filepath.Join(root, filepath.FromSlash(rel))
	back, err := filepath.Rel(root, dst)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("destination %q escapes %q", rel, root)
	}
	return dst, nil
}
