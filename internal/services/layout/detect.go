package layout

import (
	"regexp"
)

// DetectionResult classifies a listing. It is recomputed on every tree fetch.
type DetectionResult struct {
	SingleFile         bool `json:"single_file"`
	HasDiscStructure   bool `json:"has_disc_structure"`
	DiscCount          int  `json:"disc_count"`
	RecommendedFlatten bool `json:"recommended_flatten"`
}

// discDirPattern accepts CD/Disc/Disk followed by a 1-3 digit number, e.g.
// "CD1", "cd 02", "Disc 1 of 3", "Disk_04 - The Return", "Book - Disc 2".
// "Part N", bare numbers and other labels are treated as flat.
var discDirPattern = regexp.MustCompile(`(?i)^(?:.*[\s._-])?(?:cd|dis[ck])[\s._-]*\d{1,3}(?:\s*of\s*\d{1,3})?(?:[\s._)\]-].*)?$`)

// IsDiscDirName reports whether a directory name is an accepted disc marker.
func IsDiscDirName(name string) bool {
	return discDirPattern.MatchString(name)
}

// Detect classifies entries. It is pure and independent of input order.
func Detect(entries []FileEntry) DetectionResult {
	var result DetectionResult
	if len(entries) == 0 {
		return result
	}

	primary := 0
	for _, e := range entries {
		if NormalizePath(e.Path) != "" && !IsCue(e.Path) {
			primary++
		}
	}
	result.SingleFile = primary == 1

	top := BuildTree(entries).Root
	if root := CommonRoot(entries); root != "" {
		if n, ok := top.Lookup(root); ok {
			top = n
		}
	}

	result.DiscCount = countDiscDirs(top)
	result.HasDiscStructure = result.DiscCount >= 2
	result.RecommendedFlatten = result.HasDiscStructure
	return result
}

func countDiscDirs(top *Node) int {
	discs := make(map[string]struct{})
	var audioDirs []*Node
	cuePerDir := true

	for _, d := range top.Dirs {
		if d.CountFiles(IsAudio) == 0 {
			continue
		}
		audioDirs = append(audioDirs, d)
		if IsDiscDirName(d.Name) {
			discs[d.Name] = struct{}{}
		}
		if d.CountFiles(IsCue) != 1 {
			cuePerDir = false
		}
	}

	// One cue sheet per audio directory marks each directory as a disc image.
	if cuePerDir && len(audioDirs) >= 2 {
		for _, d := range audioDirs {
			discs[d.Name] = struct{}{}
		}
	}

	return len(discs)
}
