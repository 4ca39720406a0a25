package record

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// LocalFileHeader is the per-entry header stored immediately before that entry's compressed data.
//
// The local copy is not authoritative: metadata comes from the central directory, and the only thing the local header
// is reliably good for is computing where the compressed bytes actually start, since its filename and extra-field
// lengths need not match the central directory copy's.
type LocalFileHeader struct {
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   int64
	UncompressedSize int64
	Name             []byte
	// Extra is the local copy's extra-field chain with Zip64 blocks stripped.
	Extra []ExtraField
	// DataOffset is the absolute offset at which the entry's compressed bytes start.
	DataOffset int64
}

// fixedSizeLocalFileHeader needs to be fixed size to work with binary.Read.
type fixedSizeLocalFileHeader struct {
	Signature        uint32
	ReaderVersion    uint16
	Flags            uint16
	Method           uint16
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	FileNameLength   uint16
	ExtraFieldLength uint16
}

// DataOffset validates the local file header at headerOffset and returns the absolute offset of the entry's first data
// byte, past the local copy's filename and extra-field regions.
func DataOffset(src io.ReadSeeker, headerOffset int64) (int64, error) {
	if _, err := src.Seek(headerOffset, io.SeekStart); err != nil {
		return 0, formatErrorf("seek local file header error: %v", err)
	}

	buf := make([]byte, localFileHeaderLen)
	if _, err := io.ReadFull(src, buf); err != nil {
		return 0, formatErrorf("read local file header error: %v", err)
	}

	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != SigLocalFileHeader {
		return 0, formatErrorf("mismatched local file header signature, got 0x%x, expected 0x%x", sig, SigLocalFileHeader)
	}

	n := int64(binary.LittleEndian.Uint16(buf[26:28]))
	m := int64(binary.LittleEndian.Uint16(buf[28:30]))
	return headerOffset + localFileHeaderLen + n + m, nil
}

// ReadLocalFileHeader decodes the full local file header at headerOffset, including its own extra-field chain.
//
// Zip64 blocks in the local chain are consumed for the size fields only; the offset and disk fields exist solely in
// the central directory copy.
func ReadLocalFileHeader(src io.ReadSeeker, headerOffset int64) (*LocalFileHeader, error) {
	if _, err := src.Seek(headerOffset, io.SeekStart); err != nil {
		return nil, formatErrorf("seek local file header error: %v", err)
	}

	buf := make([]byte, localFileHeaderLen)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, formatErrorf("read local file header error: %v", err)
	}

	fs := &fixedSizeLocalFileHeader{}
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, fs)
	if fs.Signature != SigLocalFileHeader {
		return nil, formatErrorf("mismatched local file header signature, got 0x%x, expected 0x%x", fs.Signature, SigLocalFileHeader)
	}

	h := &LocalFileHeader{
		ReaderVersion:    fs.ReaderVersion,
		Flags:            fs.Flags,
		Method:           fs.Method,
		ModifiedTime:     fs.ModifiedTime,
		ModifiedDate:     fs.ModifiedDate,
		CRC32:            fs.CRC32,
		CompressedSize:   int64(fs.CompressedSize),
		UncompressedSize: int64(fs.UncompressedSize),
	}

	n, m := int(fs.FileNameLength), int(fs.ExtraFieldLength)
	nm := make([]byte, n+m)
	if _, err := io.ReadFull(src, nm); err != nil {
		return nil, formatErrorf("read local file header variable-size data error: %v", err)
	}

	h.Name = nm[:n]
	h.DataOffset = headerOffset + localFileHeaderLen + int64(n) + int64(m)

	need := Zip64Need{
		UncompressedSize: fs.UncompressedSize == mask32,
		CompressedSize:   fs.CompressedSize == mask32,
	}

	fields := ParseExtraFields(nm[n:])
	fields, z, err := ExtractZip64(fields, need)
	if err != nil {
		return nil, err
	}
	h.Extra = fields

	if z.HasUncompressedSize {
		h.UncompressedSize = z.UncompressedSize
	}
	if z.HasCompressedSize {
		h.CompressedSize = z.CompressedSize
	}

	return h, nil
}

// Encode serializes the local file header, substituting sentinels and appending a Zip64 size block when either size
// exceeds 32 bits.
func (h *LocalFileHeader) Encode() []byte {
	var z Zip64Extra

	compressed := mask32
	if h.CompressedSize <= math.MaxUint32 {
		compressed = uint32(h.CompressedSize)
	} else {
		z.CompressedSize, z.HasCompressedSize = h.CompressedSize, true
	}

	uncompressed := mask32
	if h.UncompressedSize <= math.MaxUint32 {
		uncompressed = uint32(h.UncompressedSize)
	} else {
		z.UncompressedSize, z.HasUncompressedSize = h.UncompressedSize, true
	}

	extra := h.Extra
	if z != (Zip64Extra{}) {
		// the local header convention masks and widens both sizes whenever either needs it.
		compressed, uncompressed = mask32, mask32
		z.HasCompressedSize, z.HasUncompressedSize = true, true
		z.CompressedSize, z.UncompressedSize = h.CompressedSize, h.UncompressedSize
		extra = append(append([]ExtraField{}, h.Extra...), z.Encode())
	}
	extraRaw := EncodeExtraFields(extra)

	buf := make([]byte, localFileHeaderLen, localFileHeaderLen+len(h.Name)+len(extraRaw))
	binary.LittleEndian.PutUint32(buf[0:4], SigLocalFileHeader)
	binary.LittleEndian.PutUint16(buf[4:6], h.ReaderVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint16(buf[8:10], h.Method)
	binary.LittleEndian.PutUint16(buf[10:12], h.ModifiedTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.ModifiedDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], compressed)
	binary.LittleEndian.PutUint32(buf[22:26], uncompressed)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Name)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(extraRaw)))

	buf = append(buf, h.Name...)
	return append(buf, extraRaw...)
}
