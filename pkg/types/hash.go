package types

import "hash/fnv"

// HashElement hashes an element's canonical string form to a non-negative
// 32-bit value. FNV-1a over the UTF-8 bytes with the sign bit masked off is
// the cross-version interoperability contract; routing tables, event hash
// codes, and split ranges all depend on it.
func HashElement(element string) int32 {
	h := fnv.New32a()
	h.Write([]byte(element))
	return int32(h.Sum32() & 0x7fffffff)
}

// MaxHash is the upper bound of the folded hash space
const MaxHash int32 = 0x7fffffff
