package artifact

import (
	"github.com/sedlab/sedemu/compress"
	"github.com/sedlab/sedemu/endian"
	"github.com/sedlab/sedemu/errs"
)

// Kind identifies the model stored in an artifact.
type Kind uint8

const (
	// KindBasis marks a PCA basis artifact.
	KindBasis Kind = 0x1
	// KindEmulator marks an emulator artifact.
	KindEmulator Kind = 0x2
)

const (
	// HeaderSize is the fixed artifact header size in bytes.
	HeaderSize = 32

	// MagicOpt is the magic number stored in bits 4-15 of the Options field.
	MagicOpt uint16 = 0x5ED0
	// MagicNumberMask extracts the magic number from the Options field.
	MagicNumberMask uint16 = 0xFFF0

	// EndiannessMask is the endianness flag bit: 0 little-endian, 1 big-endian.
	EndiannessMask uint16 = 0x0002

	// VersionMask extracts the 2-bit format version from bits 2-3.
	VersionMask  uint16 = 0x000C
	versionShift        = 2

	// FormatVersion is the artifact format version this package writes.
	FormatVersion uint16 = 0x1
)

// Flag is the packed options field at the start of every artifact header.
type Flag struct {
	// Options packs the magic number (bits 4-15), format version (bits 2-3),
	// endianness (bit 1) and a reserved bit (bit 0, must be 0).
	Options uint16
	// Kind identifies the stored model.
	Kind Kind
	// CompressionType is the codec applied to the payload.
	CompressionType compress.Type
}

// NewFlag creates a Flag for the given kind with default settings:
// current format version, little-endian, zstd compression.
func NewFlag(kind Kind) Flag {
	return Flag{
		Options:         MagicOpt | (FormatVersion << versionShift),
		Kind:            kind,
		CompressionType: compress.TypeZstd,
	}
}

// IsLittleEndian returns whether the header and payload are little-endian.
func (f Flag) IsLittleEndian() bool {
	return (f.Options & EndiannessMask) == 0
}

// WithLittleEndian sets little-endian byte order.
func (f *Flag) WithLittleEndian() {
	f.Options &^= EndiannessMask
}

// WithBigEndian sets big-endian byte order.
func (f *Flag) WithBigEndian() {
	f.Options |= EndiannessMask
}

// Version returns the format version from the Options field.
func (f Flag) Version() uint16 {
	return (f.Options & VersionMask) >> versionShift
}

// GetEndianEngine returns the endian engine matching the endianness flag.
func (f Flag) GetEndianEngine() endian.EndianEngine {
	if f.IsLittleEndian() {
		return endian.GetLittleEndianEngine()
	}

	return endian.GetBigEndianEngine()
}

// Validate checks the magic number, version, kind and compression type.
func (f Flag) Validate() error {
	if f.Options&MagicNumberMask != MagicOpt {
		return errs.ErrInvalidMagicNumber
	}
	if f.Version() != FormatVersion {
		return errs.ErrUnsupportedVersion
	}
	if f.Kind != KindBasis && f.Kind != KindEmulator {
		return errs.ErrInvalidMagicNumber
	}
	if !f.CompressionType.Valid() {
		return errs.ErrInvalidCompressionType
	}

	return nil
}

// Header is the fixed-size section at the start of every artifact.
type Header struct {
	// Flag is the packed options field. Byte offset 0-3.
	Flag Flag
	// BinIndex is the wavelength bin the model belongs to. Byte offset 4-7.
	BinIndex uint32
	// Components is the PCA component count k. Byte offset 8-11.
	Components uint32
	// Dim is kind-specific: for a basis the number of grid samples in the
	// bin, for an emulator the polynomial feature degree. Byte offset 12-15.
	Dim uint32
	// ParamDim is the parameter vector dimension, 0 for a basis.
	// Byte offset 16-19.
	ParamDim uint32
	// PayloadSize is the compressed payload size in bytes. Byte offset 20-23.
	PayloadSize uint32
	// Checksum is the xxHash64 digest of the compressed payload.
	// Byte offset 24-31.
	Checksum uint64
}

// Bytes serializes the header into a byte slice.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)

	engine := h.Flag.GetEndianEngine()

	// Options is always little-endian so readers can resolve the byte
	// order of the remaining fields.
	b[0] = byte(h.Flag.Options)
	b[1] = byte(h.Flag.Options >> 8)
	b[2] = byte(h.Flag.Kind)
	b[3] = byte(h.Flag.CompressionType)
	engine.PutUint32(b[4:8], h.BinIndex)
	engine.PutUint32(b[8:12], h.Components)
	engine.PutUint32(b[12:16], h.Dim)
	engine.PutUint32(b[16:20], h.ParamDim)
	engine.PutUint32(b[20:24], h.PayloadSize)
	engine.PutUint64(b[24:32], h.Checksum)

	return b
}

// Parse parses the header from a byte slice and validates the flag.
func (h *Header) Parse(data []byte) error {
	if len(data) < HeaderSize {
		return errs.ErrInvalidHeaderSize
	}

	h.Flag.Options = uint16(data[0]) | (uint16(data[1]) << 8)
	h.Flag.Kind = Kind(data[2])
	h.Flag.CompressionType = compress.Type(data[3])

	if err := h.Flag.Validate(); err != nil {
		return err
	}

	engine := h.Flag.GetEndianEngine()
	h.BinIndex = engine.Uint32(data[4:8])
	h.Components = engine.Uint32(data[8:12])
	h.Dim = engine.Uint32(data[12:16])
	h.ParamDim = engine.Uint32(data[16:20])
	h.PayloadSize = engine.Uint32(data[20:24])
	h.Checksum = engine.Uint64(data[24:32])

	return nil
}
