// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionGuard(t *testing.T) {
	t.Parallel()

	g := NewSelectionGuard()
	first := g.Select(1, "abc", false)
	other := g.Select(2, "zzz", false)
	second := g.Select(1, "xyz", true)

	assert.False(t, g.IsCurrent(first))
	assert.True(t, g.IsCurrent(second))
	assert.True(t, g.IsCurrent(other))

	applied := false
	require.ErrorIs(t, g.Apply(first, func() { applied = true }), ErrStaleSelection)
	assert.False(t, applied)

	require.NoError(t, g.Apply(second, func() { applied = true }))
	assert.True(t, applied)

	g.Forget(1)
	assert.False(t, g.IsCurrent(second))
}
