package layout

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

const minPartDigits = 3

// FlattenMapping renames one source file to a sequential "Part NNN" name.
type FlattenMapping struct {
	SourcePath string `json:"source_path"`
	DestName   string `json:"dest_name"`
	Size       int64  `json:"size"`
}

// Transfer is one file the importer materializes, relative to the source and destination roots.
type Transfer struct {
	Source string
	Dest   string
	Size   int64
}

// Plan is either the flattened mapping or the original listing.
type Plan struct {
	Flattened bool             `json:"flattened"`
	Root      string           `json:"root,omitempty"`
	Entries   []FileEntry      `json:"files,omitempty"`
	Mappings  []FlattenMapping `json:"mappings,omitempty"`
}

// BuildPlan returns a flatten plan when flatten is requested and the listing has
// disc structure. Otherwise the original entries are kept unchanged.
func BuildPlan(entries []FileEntry, flatten bool) Plan {
	root := CommonRoot(entries)
	if !flatten || !Detect(entries).HasDiscStructure {
		return Plan{Root: root, Entries: entries}
	}
	return Plan{Flattened: true, Root: root, Mappings: FlattenEntries(entries)}
}

// FlattenEntries drops cue sheets, orders the rest by directory then filename
// and assigns "Part NNN<ext>" names. Input order does not affect the result.
func FlattenEntries(entries []FileEntry) []FlattenMapping {
	kept := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		p := NormalizePath(e.Path)
		if p == "" || IsCue(p) {
			continue
		}
		kept = append(kept, FileEntry{Path: p, Size: e.Size})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if c := comparePaths(kept[i].Path, kept[j].Path); c != 0 {
			return c < 0
		}
		return kept[i].Size < kept[j].Size
	})

	width := max(minPartDigits, len(strconv.Itoa(len(kept))))
	mappings := make([]FlattenMapping, len(kept))
	for i, e := range kept {
		mappings[i] = FlattenMapping{
			SourcePath: e.Path,
			DestName:   fmt.Sprintf("Part %0*d%s", width, i+1, path.Ext(e.Path)),
			Size:       e.Size,
		}
	}
	return mappings
}

// comparePaths orders by directory segments first, then by filename.
func comparePaths(a, b string) int {
	aDirs, aName := splitPath(a)
	bDirs, bName := splitPath(b)
	for i := 0; i < len(aDirs) && i < len(bDirs); i++ {
		if c := strings.Compare(aDirs[i], bDirs[i]); c != 0 {
			return c
		}
	}
	if len(aDirs) != len(bDirs) {
		if len(aDirs) < len(bDirs) {
			return -1
		}
		return 1
	}
	return strings.Compare(aName, bName)
}

// Transfers resolves the plan into ordered source/destination pairs. Unflattened
// destinations keep their relative layout minus the torrent root folder.
func (p Plan) Transfers() []Transfer {
	if p.Flattened {
		out := make([]Transfer, len(p.Mappings))
		for i, m := range p.Mappings {
			out[i] = Transfer{Source: m.SourcePath, Dest: m.DestName, Size: m.Size}
		}
		return out
	}

	out := make([]Transfer, 0, len(p.Entries))
	for _, e := range p.Entries {
		src := NormalizePath(e.Path)
		if src == "" {
			continue
		}
		out = append(out, Transfer{Source: src, Dest: StripRoot(src, p.Root), Size: e.Size})
	}
	return out
}

// Subtree returns the entries under dir together with their paths relative to it.
// It is used to plan each book of a multi-book torrent on its own.
func Subtree(entries []FileEntry, dir string) []FileEntry {
	dir = strings.Trim(NormalizePath(dir), "/")
	if dir == "" {
		return entries
	}
	var out []FileEntry
	for _, e := range entries {
		p := NormalizePath(e.Path)
		if rest, ok := strings.CutPrefix(p, dir+"/"); ok {
			out = append(out, FileEntry{Path: rest, Size: e.Size})
		}
	}
	return out
}
