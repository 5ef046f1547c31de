package layout

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(paths ...string) []FileEntry {
	out := make([]FileEntry, len(paths))
	for i, p := range paths {
		out[i] = FileEntry{Path: p, Size: int64(100 + i)}
	}
	return out
}

func shuffled(in []FileEntry, seed int64) []FileEntry {
	out := append([]FileEntry(nil), in...)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestBuildTree(t *testing.T) {
	t.Parallel()

	tree := BuildTree(entries(
		"Book/Disc 1/01.mp3",
		"Book/Disc 1/02.mp3",
		"Book/Disc 2/01.mp3",
		"Book\\cover.jpg",
		"readme.txt",
	))

	require.Len(t, tree.Root.Dirs, 1)
	require.Len(t, tree.Root.Files, 1)
	assert.Equal(t, "readme.txt", tree.Root.Files[0].Path)

	book, ok := tree.Root.Lookup("Book")
	require.True(t, ok)
	require.Len(t, book.Dirs, 2)
	assert.Equal(t, "Disc 1", book.Dirs[0].Name)
	assert.Equal(t, "Disc 2", book.Dirs[1].Name)
	require.Len(t, book.Files, 1)
	assert.Equal(t, "Book/cover.jpg", book.Files[0].Path)

	disc1, ok := book.Lookup("Disc 1")
	require.True(t, ok)
	assert.Len(t, disc1.Files, 2)
	assert.Equal(t, 3, book.CountFiles(IsAudio))
	assert.Len(t, tree.Root.Entries(), 5)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"./a/b.mp3":   "a/b.mp3",
		"/a//b.mp3":   "a/b.mp3",
		"a\\b\\c.mp3": "a/b/c.mp3",
		"":            "",
		"./":          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePath(in), in)
	}
}

func TestIsDiscDirName(t *testing.T) {
	t.Parallel()

	accepted := []string{"CD1", "cd 02", "Disc 1", "disc01", "Disk_04 - The Return", "Disc 1 of 3", "DISC-3", "Book - Disc 2", "CD 1 (Bonus)"}
	rejected := []string{"Part 1", "1", "01", "Discography", "CDs", "Extras", "Chapter 1", "Abcd 1", "CD1234"}

	for _, name := range accepted {
		assert.True(t, IsDiscDirName(name), name)
	}
	for _, name := range rejected {
		assert.False(t, IsDiscDirName(name), name)
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []FileEntry
		want    DetectionResult
	}{
		{
			name:    "empty",
			entries: nil,
			want:    DetectionResult{},
		},
		{
			name:    "single file",
			entries: entries("book.m4b"),
			want:    DetectionResult{SingleFile: true},
		},
		{
			name:    "single file with cue sidecar",
			entries: entries("book.flac", "book.cue"),
			want:    DetectionResult{SingleFile: true},
		},
		{
			name:    "flat folder",
			entries: entries("Book/01.mp3", "Book/02.mp3", "Book/cover.jpg"),
			want:    DetectionResult{},
		},
		{
			name:    "disc folders with cue sheets",
			entries: entries("Disc 1/01.mp3", "Disc 1/01.cue", "Disc 2/01.mp3", "Disc 2/01.cue"),
			want:    DetectionResult{HasDiscStructure: true, DiscCount: 2, RecommendedFlatten: true},
		},
		{
			name:    "disc folders under torrent root",
			entries: entries("Book/CD1/01.mp3", "Book/CD2/01.mp3", "Book/CD3/01.mp3", "Book/cover.jpg"),
			want:    DetectionResult{HasDiscStructure: true, DiscCount: 3, RecommendedFlatten: true},
		},
		{
			name:    "single disc folder is flat",
			entries: entries("Book/Disc 1/01.mp3", "Book/Disc 1/02.mp3"),
			want:    DetectionResult{DiscCount: 1},
		},
		{
			name:    "part folders are ambiguous",
			entries: entries("Part 1/01.mp3", "Part 2/01.mp3"),
			want:    DetectionResult{},
		},
		{
			name:    "cue per directory marks discs",
			entries: entries("Side A/a.flac", "Side A/a.cue", "Side B/b.flac", "Side B/b.cue"),
			want:    DetectionResult{HasDiscStructure: true, DiscCount: 2, RecommendedFlatten: true},
		},
		{
			name:    "cue rule needs a cue in every audio directory",
			entries: entries("Side A/a.flac", "Side A/a.cue", "Side B/b.flac"),
			want:    DetectionResult{},
		},
		{
			name:    "disc folder without audio is ignored",
			entries: entries("CD1/01.mp3", "CD2/scan.jpg"),
			want:    DetectionResult{DiscCount: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Detect(tt.entries))
		})
	}
}

func TestDetectIsOrderIndependent(t *testing.T) {
	t.Parallel()

	base := entries(
		"Book/Disc 01/01 Intro.mp3",
		"Book/Disc 01/02 Chapter.mp3",
		"Book/Disc 02/01 Chapter.mp3",
		"Book/Disc 03/01 Chapter.mp3",
		"Book/Disc 03/disc.cue",
		"Book/folder.jpg",
	)
	want := Detect(base)
	require.Equal(t, 3, want.DiscCount)

	for seed := int64(1); seed <= 20; seed++ {
		assert.Equal(t, want, Detect(shuffled(base, seed)))
	}
}

func TestFlattenScenarioA(t *testing.T) {
	t.Parallel()

	listing := []FileEntry{
		{Path: "Disc 1/01.mp3", Size: 10},
		{Path: "Disc 1/01.cue", Size: 1},
		{Path: "Disc 2/01.mp3", Size: 20},
		{Path: "Disc 2/01.cue", Size: 1},
	}

	result := Detect(listing)
	assert.Equal(t, 2, result.DiscCount)
	assert.True(t, result.RecommendedFlatten)

	plan := BuildPlan(listing, true)
	require.True(t, plan.Flattened)
	assert.Equal(t, []FlattenMapping{
		{SourcePath: "Disc 1/01.mp3", DestName: "Part 001.mp3", Size: 10},
		{SourcePath: "Disc 2/01.mp3", DestName: "Part 002.mp3", Size: 20},
	}, plan.Mappings)
}

func TestBuildPlanKeepsListingWhenNotFlattening(t *testing.T) {
	t.Parallel()

	discs := entries("Book/CD1/a.mp3", "Book/CD2/b.mp3", "Book/CD2/b.cue")
	flat := entries("Book/01.mp3", "Book/02.mp3")

	for _, tc := range []struct {
		name    string
		entries []FileEntry
		flatten bool
	}{
		{"toggle off", discs, false},
		{"no disc structure", flat, true},
		{"single file", entries("book.m4b"), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			plan := BuildPlan(tc.entries, tc.flatten)
			assert.False(t, plan.Flattened)
			assert.Equal(t, tc.entries, plan.Entries)
			assert.Empty(t, plan.Mappings)
		})
	}
}

func TestFlattenEntriesProperties(t *testing.T) {
	t.Parallel()

	base := entries(
		"Book/Disc 2/02.mp3",
		"Book/Disc 1/02.mp3",
		"Book/Disc 1/01.mp3",
		"Book/Disc 1/disc1.CUE",
		"Book/Disc 2/01.mp3",
		"Book/Disc 1 Bonus/01.mp3",
		"Book/Disc 2/sub/01.mp3",
		"Book/cover.jpg",
	)

	nonCue := 0
	for _, e := range base {
		if !IsCue(e.Path) {
			nonCue++
		}
	}

	want := FlattenEntries(base)
	require.Len(t, want, nonCue)
	for i, m := range want {
		assert.False(t, IsCue(m.SourcePath))
		if i > 0 {
			assert.Less(t, want[i-1].DestName, m.DestName)
		}
	}

	assert.Equal(t, "Book/cover.jpg", want[0].SourcePath)
	assert.Equal(t, "Book/Disc 1/01.mp3", want[1].SourcePath)
	assert.Equal(t, "Book/Disc 1/02.mp3", want[2].SourcePath)
	assert.Equal(t, "Book/Disc 1 Bonus/01.mp3", want[3].SourcePath)
	assert.Equal(t, "Book/Disc 2/sub/01.mp3", want[6].SourcePath)
	assert.Equal(t, "Part 007.mp3", want[6].DestName)
	assert.Equal(t, "Part 001.jpg", want[0].DestName)

	for seed := int64(1); seed <= 20; seed++ {
		assert.Equal(t, want, FlattenEntries(shuffled(base, seed)))
	}
}

func TestFlattenEntriesWidensPadding(t *testing.T) {
	t.Parallel()

	listing := make([]FileEntry, 0, 1000)
	for i := range 1000 {
		listing = append(listing, FileEntry{Path: "CD1/" + string(rune('a'+i%26)) + "/" + strconv.Itoa(i) + ".mp3"})
	}
	mappings := FlattenEntries(listing)
	require.Len(t, mappings, 1000)
	assert.Equal(t, "Part 0001.mp3", mappings[0].DestName)
	assert.Equal(t, "Part 1000.mp3", mappings[999].DestName)
}

func TestFlattenEntriesKeepsMissingExtension(t *testing.T) {
	t.Parallel()

	mappings := FlattenEntries(entries("CD1/track", "CD2/track.M4B"))
	require.Len(t, mappings, 2)
	assert.Equal(t, "Part 001", mappings[0].DestName)
	assert.Equal(t, "Part 002.M4B", mappings[1].DestName)
}

func TestPlanTransfers(t *testing.T) {
	t.Parallel()

	listing := entries("Book/CD1/01.mp3", "Book/CD1/01.cue", "Book/CD2/01.mp3")

	flat := BuildPlan(listing, true).Transfers()
	assert.Equal(t, []Transfer{
		{Source: "Book/CD1/01.mp3", Dest: "Part 001.mp3", Size: 100},
		{Source: "Book/CD2/01.mp3", Dest: "Part 002.mp3", Size: 102},
	}, flat)

	native := BuildPlan(listing, false).Transfers()
	assert.Equal(t, []Transfer{
		{Source: "Book/CD1/01.mp3", Dest: "CD1/01.mp3", Size: 100},
		{Source: "Book/CD1/01.cue", Dest: "CD1/01.cue", Size: 101},
		{Source: "Book/CD2/01.mp3", Dest: "CD2/01.mp3", Size: 102},
	}, native)

	single := BuildPlan(entries("book.m4b"), false).Transfers()
	assert.Equal(t, []Transfer{{Source: "book.m4b", Dest: "book.m4b", Size: 100}}, single)
}

func TestSubtree(t *testing.T) {
	t.Parallel()

	listing := entries("Series/Book 1/01.mp3", "Series/Book 2/01.mp3", "Series/Book 2/02.mp3")
	sub := Subtree(listing, "Series/Book 2")
	require.Len(t, sub, 2)
	assert.Equal(t, "01.mp3", sub[0].Path)
	assert.Equal(t, "02.mp3", sub[1].Path)
	assert.Equal(t, listing, Subtree(listing, ""))
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	base := entries("a/1.mp3", "a/2.mp3", "b/3.mp3")
	fp := Fingerprint(base)
	assert.Equal(t, fp, Fingerprint(shuffled(base, 7)))
	assert.NotEqual(t, fp, Fingerprint(entries("a/1.mp3", "a/2.mp3")))
	assert.NotEqual(t, fp, Fingerprint([]FileEntry{{Path: "a/1.mp3", Size: 1}, {Path: "a/2.mp3", Size: 101}, {Path: "b/3.mp3", Size: 102}}))
}
