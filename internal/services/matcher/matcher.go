// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matcher

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/pkg/stringutils"
)

// ErrNoMatchFound is returned when no candidate matches the recorded identity.
var ErrNoMatchFound = errors.New("no torrent matches history item")

// Candidate is a read-only snapshot of a torrent in the client.
type Candidate struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	ContentPath string  `json:"content_path"`
	SavePath    string  `json:"save_path"`
	MamID       string  `json:"mam_id,omitempty"`
	SingleFile  bool    `json:"single_file"`
	Root        string  `json:"root"`
	Category    string  `json:"category,omitempty"`
	State       string  `json:"state,omitempty"`
	Progress    float64 `json:"progress"`
	Incomplete  bool    `json:"incomplete,omitempty"`
}

type Method string

const (
	MethodHash  Method = "hash"
	MethodMamID Method = "mam_id"
	MethodNone  Method = "none"
)

// Result describes which candidate was picked and why.
type Result struct {
	Method    Method     `json:"method"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// Matched reports whether a candidate was selected.
func (r Result) Matched() bool {
	return r.Candidate != nil
}

// Err returns ErrNoMatchFound when nothing matched.
func (r Result) Err() error {
	if r.Matched() {
		return nil
	}
	return ErrNoMatchFound
}

type WarningCode string

const (
	WarningMamIDMismatch WarningCode = "mam_id_mismatch"
	WarningPathMismatch  WarningCode = "path_mismatch"
	WarningIncomplete    WarningCode = "incomplete"
)

type Severity string

const (
	SeverityAdvisory     Severity = "advisory"
	SeverityLikelyToFail Severity = "likely_to_fail"
)

// Warning is advisory. It never blocks an import.
type Warning struct {
	Code     WarningCode `json:"code"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
}

// Matcher picks the torrent belonging to a history item.
type Matcher struct {
	mediaRoot string
}

// New returns a Matcher. mediaRootFragment is the path fragment a content path must
// contain for hardlinks into the library to work; empty disables the check.
func New(mediaRootFragment string) *Matcher {
	return &Matcher{mediaRoot: strings.TrimSpace(mediaRootFragment)}
}

// Match selects a candidate by hash first, then by mam_id. The first match in
// candidate order wins. Warnings describe the selected candidate.
func (m *Matcher) Match(history *models.HistoryItem, candidates []Candidate) (Result, []Warning) {
	if history == nil {
		return Result{Method: MethodNone}, nil
	}

	if hash := normalizeHash(history.QBHash); hash != "" {
		for i := range candidates {
			if normalizeHash(candidates[i].Hash) == hash {
				c := candidates[i]
				return Result{Method: MethodHash, Candidate: &c}, m.Validate(history, c)
			}
		}
	}

	if mamID := strings.TrimSpace(history.MamID); mamID != "" {
		for i := range candidates {
			if strings.TrimSpace(candidates[i].MamID) == mamID {
				c := candidates[i]
				return Result{Method: MethodMamID, Candidate: &c}, m.Validate(history, c)
			}
		}
	}

	return Result{Method: MethodNone}, nil
}

// Validate checks the currently selected candidate, whether auto-matched or picked by hand.
func (m *Matcher) Validate(history *models.HistoryItem, c Candidate) []Warning {
	var warnings []Warning

	if history != nil {
		got := strings.TrimSpace(c.MamID)
		want := strings.TrimSpace(history.MamID)
		if got != "" && got != want {
			warnings = append(warnings, Warning{
				Code:     WarningMamIDMismatch,
				Severity: SeverityAdvisory,
				Message:  fmt.Sprintf("selected torrent has MAM id %s but this item was added as %s", got, displayID(want)),
			})
		}
	}

	if m.mediaRoot != "" && !strings.Contains(path.Clean(c.ContentPath), strings.TrimRight(m.mediaRoot, "/")) {
		warnings = append(warnings, Warning{
			Code:     WarningPathMismatch,
			Severity: SeverityLikelyToFail,
			Message:  fmt.Sprintf("content path %q is outside %q, hardlinking will likely fail", c.ContentPath, m.mediaRoot),
		})
	}

	if c.Incomplete {
		warnings = append(warnings, Warning{
			Code:     WarningIncomplete,
			Severity: SeverityAdvisory,
			Message:  fmt.Sprintf("torrent is not finished downloading (%.0f%%)", c.Progress*100),
		})
	}

	return warnings
}

func displayID(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

func normalizeHash(hash string) string {
	return stringutils.DefaultNormalizer.Normalize(hash)
}

var mamTagPattern = regexp.MustCompile(`(?i)^mam[_-]?id[\s:=_-]*(\d+)$`)

// MamIDFromTags extracts a MyAnonamouse torrent id from comma separated client tags
// such as "audiobook, mamid-12345".
func MamIDFromTags(tags string) string {
	for _, tag := range strings.Split(tags, ",") {
		if m := mamTagPattern.FindStringSubmatch(strings.TrimSpace(tag)); m != nil {
			return m[1]
		}
	}
	return ""
}
