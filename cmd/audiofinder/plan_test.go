package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const discListing = `[
	{"path": "Book/CD2/01.mp3", "size": 5},
	{"path": "Book/CD1/01.mp3", "size": 4},
	{"path": "Book/CD1/02.mp3", "size": 6},
	{"path": "Book/CD1/book.cue", "size": 1}
]`

func runPlan(t *testing.T, stdin string, args ...string) planOutput {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"plan"}, args...))
	require.NoError(t, cmd.Execute())

	var result planOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	return result
}

func TestPlanCommandFollowsRecommendation(t *testing.T) {
	result := runPlan(t, discListing, "-")

	assert.True(t, result.Detection.HasDiscStructure)
	assert.Equal(t, 2, result.Detection.DiscCount)
	assert.True(t, result.Plan.Flattened)
	require.Len(t, result.Plan.Mappings, 3)
	assert.Equal(t, "Book/CD1/01.mp3", result.Plan.Mappings[0].SourcePath)
	assert.Equal(t, "Part 001.mp3", result.Plan.Mappings[0].DestName)
	assert.Equal(t, "Part 003.mp3", result.Plan.Mappings[2].DestName)
}

func TestPlanCommandFlattenOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "files.json")
	require.NoError(t, os.WriteFile(path, []byte(discListing), 0o644))

	result := runPlan(t, "", "--flatten=false", path)

	assert.True(t, result.Detection.RecommendedFlatten)
	assert.False(t, result.Plan.Flattened)
	assert.Empty(t, result.Plan.Mappings)
	assert.Len(t, result.Plan.Entries, 4)
}

func TestPlanCommandRejectsBadInput(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("{"))
	cmd.SetArgs([]string{"plan", "-"})
	assert.Error(t, cmd.Execute())
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version: dev")
}
