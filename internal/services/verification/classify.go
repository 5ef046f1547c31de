package verification

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/raygan/mam-audiofinder-sub001/internal/models"
	"github.com/raygan/mam-audiofinder-sub001/internal/services/audiobookshelf"
	"github.com/raygan/mam-audiofinder-sub001/pkg/stringutils"
)

const minContainsLen = 4

// Classify picks the best search hit for title and author.
func Classify(title, author string, items []audiobookshelf.Item) Outcome {
	if len(items) == 0 {
		return Outcome{Status: models.VerifyStatusNotFound, Note: fmt.Sprintf("No library results for %q", title)}
	}

	var titleOnly *audiobookshelf.Item
	// Exact titles win over fuzzy ones so a sequel never shadows the book itself.
	for _, match := range []func(string, string) bool{titleEqual, titleMatches} {
		for i := range items {
			it := &items[i]
			if !match(title, it.Title) && !match(title, joinTitle(it.Title, it.Subtitle)) {
				continue
			}
			if authorMatches(author, it.Author) {
				return Outcome{
					Status: models.VerifyStatusVerified,
					Note:   fmt.Sprintf("Found %q by %s", it.Title, it.Author),
					ItemID: it.ID,
				}
			}
			if titleOnly == nil {
				titleOnly = it
			}
		}
	}

	if titleOnly != nil {
		return Outcome{
			Status: models.VerifyStatusMismatch,
			Note:   fmt.Sprintf("Library has %q by %s, expected author %s", titleOnly.Title, displayAuthor(titleOnly.Author), displayAuthor(author)),
			ItemID: titleOnly.ID,
		}
	}

	top := items[0]
	return Outcome{
		Status: models.VerifyStatusMismatch,
		Note:   fmt.Sprintf("Closest library result is %q by %s", top.Title, displayAuthor(top.Author)),
	}
}

func titleEqual(want, got string) bool {
	w := stringutils.NormalizeForMatch(want)
	return w != "" && w == stringutils.NormalizeForMatch(got)
}

func titleMatches(want, got string) bool {
	w := stringutils.NormalizeForMatch(want)
	g := stringutils.NormalizeForMatch(got)
	if w == "" || g == "" {
		return false
	}
	if w == g {
		return true
	}

	shorter, longer := w, g
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= minContainsLen && strings.Contains(longer, shorter) {
		return true
	}

	// Tolerate small edits such as a dropped article or a typo.
	rank := fuzzy.RankMatchNormalizedFold(shorter, longer)
	return rank >= 0 && rank <= max(2, len(longer)/10)
}

func authorMatches(want, got string) bool {
	w := stringutils.NormalizeForMatch(want)
	if w == "" {
		return true
	}
	g := stringutils.NormalizeForMatch(got)
	if g == "" {
		return false
	}
	if w == g || strings.Contains(g, w) || strings.Contains(w, g) {
		return true
	}

	// Match on surname so "J.R.R. Tolkien" and "John Ronald Reuel Tolkien" agree.
	wantTokens := strings.Fields(w)
	surname := wantTokens[len(wantTokens)-1]
	for _, tok := range strings.Fields(g) {
		if tok == surname && len(surname) > 1 {
			return true
		}
	}
	return false
}

func joinTitle(title, subtitle string) string {
	if subtitle == "" {
		return title
	}
	return title + " " + subtitle
}

func displayAuthor(a string) string {
	if strings.TrimSpace(a) == "" {
		return "unknown author"
	}
	return a
}
