// Package endian provides byte order utilities for the binary corpus and
// artifact formats.
//
// It combines the ByteOrder and AppendByteOrder interfaces from
// encoding/binary into a single EndianEngine interface so encoders can both
// write into fixed offsets and append to growing buffers through one value.
//
// Corpus flux blobs and artifact payloads default to little endian; the
// engine is recorded in each artifact header so files written on big-endian
// hosts remain readable anywhere.
//
// All functions and methods in this package are safe for concurrent use.
// The returned EndianEngine instances are immutable and stateless.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary
// into a single interface for convenient byte order operations.
//
// The interface is satisfied by binary.LittleEndian and binary.BigEndian,
// so it remains fully compatible with standard library code.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// CheckEndianness uses a fixed integer value to determine the host's byte order.
func CheckEndianness() binary.ByteOrder {
	// 0x0100 is 256. For a little-endian system, the LSB (0x00) is first.
	// For a big-endian system, the MSB (0x01) is first.
	var i uint16 = 0x0100

	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// IsNativeLittleEndian reports whether the host is little endian.
func IsNativeLittleEndian() bool {
	return CheckEndianness() == binary.LittleEndian
}

// IsNativeBigEndian reports whether the host is big endian.
func IsNativeBigEndian() bool {
	return CheckEndianness() == binary.BigEndian
}

// CompareNativeEndian reports whether engine matches the host byte order.
func CompareNativeEndian(engine EndianEngine) bool {
	return engine == CheckEndianness()
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
