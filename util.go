package tscore

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// sortedUint16Keys returns a map's uint16 keys in ascending order, so
// encode output (PAT program lists, PMT stream lists) is deterministic
// across runs instead of following Go's randomised map iteration order.
func sortedUint16Keys[V any](m map[uint16]V) []uint16 {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
