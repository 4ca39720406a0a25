// Package record implements the binary record layer of the ZIP container format: end-of-central-directory discovery,
// the Zip64 size-extension protocol, the central-directory and local file header records, and the generic
// tag-length-value extra-field chain.
//
// The package is codec-agnostic: compression methods are carried as tag values only, and entry payloads are never
// touched. See https://en.wikipedia.org/wiki/ZIP_(file_format) for the on-disk layout.
package record

import (
	"errors"
	"fmt"
)

// Record signatures, little-endian on disk.
const (
	SigLocalFileHeader uint32 = 0x04034b50
	SigDataDescriptor  uint32 = 0x08074b50
	SigCDFileHeader    uint32 = 0x02014b50
	SigEOCD64          uint32 = 0x06064b50
	SigEOCD64Locator   uint32 = 0x07064b50
	SigEOCD            uint32 = 0x06054b50
)

// Fixed record sizes in bytes, excluding variable-length tails.
const (
	localFileHeaderLen = 30
	cdFileHeaderLen    = 46
	eocdLen            = 22
	eocd64Len          = 56
	eocd64LocatorLen   = 20
	sigLen             = 4
)

// Sentinel values signalling that a narrow field's true value lives in a Zip64 extension instead.
const (
	mask16 uint16 = 0xffff
	mask32 uint32 = 0xffffffff
)

// zip64Version is the version-made-by/version-needed-to-extract value written on Zip64 EOCD records (4.5 in the
// APPNOTE versioning scheme).
const zip64Version uint16 = 45

// Compression method tags carried by file headers. The record layer never invokes a codec; these exist so callers can
// dispatch to one.
const (
	MethodStored    uint16 = 0
	MethodDeflated  uint16 = 8
	MethodDeflate64 uint16 = 9
	MethodBZIP2     uint16 = 0xc
	MethodLZMA      uint16 = 0xe
)

// General-purpose bit flags.
const (
	FlagEncrypted      uint16 = 1 << 0
	FlagDataDescriptor uint16 = 1 << 3
	FlagUTF8           uint16 = 1 << 11
)

var (
	// ErrNoEOCDFound is returned if no EOCD signature was found.
	ErrNoEOCDFound = errors.New("end of central directory not found; most likely not a ZIP file")
	// ErrFormat is returned when a structurally required record is malformed. The returned errors wrap ErrFormat
	// with a descriptive reason.
	ErrFormat = errors.New("invalid ZIP data")
	// ErrMultiDisk is returned for split or spanned archives, which are never supported.
	ErrMultiDisk = errors.New("split or spanned ZIP archives are not supported")
)

// formatErrorf wraps ErrFormat with a reason so that errors.Is(err, ErrFormat) holds.
func formatErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}
