// Package hash computes stable 64-bit identifiers for corpus samples and
// persisted artifacts.
package hash

import (
	"github.com/cespare/xxhash/v2"
)

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Sum computes the xxHash64 of the given bytes. Used as the integrity
// checksum for artifact payload sections.
func Sum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// SampleKey computes a stable identifier for a corpus sample from its
// (role, batch, index) coordinates. The key is independent of insertion
// order, so parallel batch builders derive identical keys for the same slot.
func SampleKey(role string, batch, index int) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(role)
	var buf [16]byte
	putUint64(buf[:8], uint64(int64(batch)))
	putUint64(buf[8:], uint64(int64(index)))
	_, _ = d.Write(buf[:])

	return d.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
