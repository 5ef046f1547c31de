// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
)

func TestMatchPrefersHash(t *testing.T) {
	t.Parallel()

	m := New("")
	history := &models.HistoryItem{QBHash: "abc", MamID: "1"}
	candidates := []Candidate{
		{Hash: "xyz", MamID: "1"},
		{Hash: "abc", MamID: "1"},
		{Hash: "def", MamID: "2"},
	}

	result, warnings := m.Match(history, candidates)
	require.True(t, result.Matched())
	assert.Equal(t, MethodHash, result.Method)
	assert.Equal(t, "abc", result.Candidate.Hash)
	assert.Empty(t, warnings)
	assert.NoError(t, result.Err())
}

func TestMatchScenarios(t *testing.T) {
	t.Parallel()

	candidates := []Candidate{
		{Hash: "abc", MamID: "1"},
		{Hash: "xyz", MamID: " 2 "},
	}

	tests := []struct {
		name       string
		history    *models.HistoryItem
		wantMethod Method
		wantHash   string
		wantCodes  []WarningCode
	}{
		{
			name:       "hash match without mam id",
			history:    &models.HistoryItem{QBHash: "abc"},
			wantMethod: MethodHash,
			wantHash:   "abc",
			wantCodes:  []WarningCode{WarningMamIDMismatch},
		},
		{
			name:       "hash match is case insensitive",
			history:    &models.HistoryItem{QBHash: " ABC ", MamID: "1"},
			wantMethod: MethodHash,
			wantHash:   "abc",
		},
		{
			name:       "hash match wins over mam id disagreement",
			history:    &models.HistoryItem{QBHash: "xyz", MamID: "1"},
			wantMethod: MethodHash,
			wantHash:   "xyz",
			wantCodes:  []WarningCode{WarningMamIDMismatch},
		},
		{
			name:       "falls back to trimmed mam id",
			history:    &models.HistoryItem{QBHash: "missing", MamID: "2 "},
			wantMethod: MethodMamID,
			wantHash:   "xyz",
		},
		{
			name:       "mam id only",
			history:    &models.HistoryItem{MamID: "1"},
			wantMethod: MethodMamID,
			wantHash:   "abc",
		},
		{
			name:       "nothing recorded",
			history:    &models.HistoryItem{},
			wantMethod: MethodNone,
		},
		{
			name:       "no candidate matches",
			history:    &models.HistoryItem{QBHash: "nope", MamID: "9"},
			wantMethod: MethodNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, warnings := New("").Match(tt.history, candidates)
			assert.Equal(t, tt.wantMethod, result.Method)
			if tt.wantHash == "" {
				assert.False(t, result.Matched())
				assert.ErrorIs(t, result.Err(), ErrNoMatchFound)
				assert.Empty(t, warnings)
				return
			}
			require.True(t, result.Matched())
			assert.Equal(t, tt.wantHash, result.Candidate.Hash)
			assert.Equal(t, tt.wantCodes, codes(warnings))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	m := New("/data/torrents")
	history := &models.HistoryItem{MamID: "10"}

	t.Run("clean", func(t *testing.T) {
		t.Parallel()
		w := m.Validate(history, Candidate{MamID: "10", ContentPath: "/data/torrents/audiobooks/Book"})
		assert.Empty(t, w)
	})

	t.Run("path outside media root is likely to fail", func(t *testing.T) {
		t.Parallel()
		w := m.Validate(history, Candidate{ContentPath: "/downloads/Book"})
		require.Len(t, w, 1)
		assert.Equal(t, WarningPathMismatch, w[0].Code)
		assert.Equal(t, SeverityLikelyToFail, w[0].Severity)
	})

	t.Run("missing candidate mam id is not a mismatch", func(t *testing.T) {
		t.Parallel()
		w := m.Validate(history, Candidate{ContentPath: "/data/torrents/Book"})
		assert.Empty(t, w)
	})

	t.Run("all warnings", func(t *testing.T) {
		t.Parallel()
		w := m.Validate(history, Candidate{MamID: "11", ContentPath: "/tmp/x", Incomplete: true, Progress: 0.5})
		assert.Equal(t, []WarningCode{WarningMamIDMismatch, WarningPathMismatch, WarningIncomplete}, codes(w))
		assert.Contains(t, w[2].Message, "50%")
	})
}

func TestMamIDFromTags(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"mamid-12345":         "12345",
		"audiobook, mamid:77": "77",
		"MAM_ID=8, other":     "8",
		"mam-id 9":            "9",
		"audiobook,fantasy":   "",
		"":                    "",
		"mamid-abc, mamid-4":  "4",
		"notmamid-5":          "",
	}

	for tags, want := range tests {
		assert.Equal(t, want, MamIDFromTags(tags), tags)
	}
}

func codes(warnings []Warning) []WarningCode {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]WarningCode, len(warnings))
	for i, w := range warnings {
		out[i] = w.Code
	}
	return out
}
