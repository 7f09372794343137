// Package artifact serializes trained PCA bases and emulators into a
// compact, self-describing binary format and manages them on disk.
//
// # Format
//
// Each artifact is a 32-byte fixed header followed by a compressed payload:
//
//	Byte 0-1:   Options (magic number, format version, endianness flag)
//	Byte 2:     Kind (basis or emulator)
//	Byte 3:     Compression type
//	Byte 4-7:   Wavelength bin index
//	Byte 8-11:  Component count k
//	Byte 12-15: Kind-specific dimension (basis: grid samples, emulator: degree)
//	Byte 16-19: Parameter dimension (basis: 0)
//	Byte 20-23: Compressed payload size in bytes
//	Byte 24-31: xxHash64 checksum of the compressed payload
//
// The Options field is always little-endian; its endianness flag selects
// the byte order of the remaining header fields and the payload. Payloads
// are packed scalar fields and float64 vectors and matrices, compressed
// with the codec named in the header, so a reader needs nothing beyond the
// artifact itself. Emulator payloads lead with the fit and test metric
// blocks.
//
// # Naming
//
// The Store addresses artifacts by run name and wavelength bin. Files are
// named <run>.w<lo>_<hi>.pca<k>.basis and <run>.w<lo>_<hi>.pca<k>.emu,
// e.g. fiducial.w3600_5500.pca50.basis.
package artifact
