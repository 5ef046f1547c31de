package importer

import (
	"strings"
	"unicode"
)

const unknownAuthor = "Unknown Author"

// sanitizeSegment makes s safe as a single path segment on common filesystems.
func sanitizeSegment(s, fallback string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	mapped = strings.Join(strings.Fields(mapped), " ")
	mapped = strings.Trim(mapped, ". ")
	if mapped == "" {
		return fallback
	}
	if len(mapped) > 200 {
		mapped = strings.TrimSpace(truncateRunes(mapped, 200))
	}
	return mapped
}

func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}
