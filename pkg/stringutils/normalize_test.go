// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUnicode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Bronte", NormalizeUnicode("Brontë"))
	assert.Equal(t, "Garcia Marquez", NormalizeUnicode("García Márquez"))
	assert.Equal(t, "plain", NormalizeUnicode("plain"))
}

func TestNormalizeForMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Ender's Game", "enders game"},
		{"  The  Hobbit:  There and Back Again ", "the hobbit there and back again"},
		{"Jane Eyre (Unabridged)", "jane eyre unabridged"},
		{"Cien años de soledad", "cien anos de soledad"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeForMatch(tt.in))
		})
	}
}

func TestDefaultNormalizer(t *testing.T) {
	t.Parallel()

	n := NewDefaultNormalizer()
	assert.Equal(t, "abcdef", n.Normalize("  ABCdef "))
	assert.Equal(t, "abcdef", n.Normalize("  ABCdef "))
}
