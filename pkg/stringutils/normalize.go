// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"time"
	"unicode"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer memoizes a string transform for hot lookup paths such as hash comparison.
type Normalizer[K comparable, V any] struct {
	cache     *ttlcache.Cache[K, V]
	transform func(K) V
}

// NewNormalizer returns a Normalizer that caches transform results for ttl.
func NewNormalizer[K comparable, V any](ttl time.Duration, fn func(K) V) *Normalizer[K, V] {
	return &Normalizer[K, V]{
		cache:     ttlcache.New(ttlcache.Options[K, V]{}.SetDefaultTTL(ttl)),
		transform: fn,
	}
}

// NewDefaultNormalizer lowercases and trims input.
func NewDefaultNormalizer() *Normalizer[string, string] {
	return NewNormalizer(5*time.Minute, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

// DefaultNormalizer is shared by packages that only need lowercase+trim.
var DefaultNormalizer = NewDefaultNormalizer()

// Normalize returns the cached transform of key.
func (n *Normalizer[K, V]) Normalize(key K) V {
	if v, ok := n.cache.Get(key); ok {
		return v
	}
	v := n.transform(key)
	n.cache.Set(key, v, ttlcache.DefaultTTL)
	return v
}

// NormalizeUnicode strips combining marks so "Brontë" and "Bronte" compare equal.
func NormalizeUnicode(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeForMatch folds case, diacritics, punctuation and whitespace runs.
func NormalizeForMatch(s string) string {
	s = strings.ToLower(NormalizeUnicode(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case r == '\'' || r == '’':
			// apostrophes vanish: "Ender's" -> "enders"
		default:
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
