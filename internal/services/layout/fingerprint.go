package layout

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns an order-independent signature of a listing, used as a cache key.
func Fingerprint(entries []FileEntry) uint64 {
	var sig uint64
	for _, e := range entries {
		p := NormalizePath(e.Path)
		if p == "" {
			continue
		}
		// XOR keeps the signature stable across permutations.
		sig ^= xxhash.Sum64String(p + "\x00" + strconv.FormatInt(e.Size, 10))
	}
	return sig ^ uint64(len(entries))
}
