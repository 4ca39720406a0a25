package record

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/valyala/bytebufferpool"
)

// CDFileHeader is a central directory file header with any Zip64 widening already applied: sizes, local header offset
// and disk number hold the canonical 64-bit values, resolved field-by-field at decode time.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#Central_directory_file_header_(CDFH).
type CDFileHeader struct {
	// CreatorVersion is version-made-by: the high byte is the platform, the low byte the supported spec version.
	CreatorVersion uint16
	// ReaderVersion is the minimum spec version needed to extract.
	ReaderVersion uint16
	// Flags is the general-purpose bit flags word; see FlagEncrypted, FlagDataDescriptor and FlagUTF8.
	Flags uint16
	// Method is the compression method tag. The record layer never invokes a codec.
	Method uint16
	// ModifiedTime and ModifiedDate are the packed MS-DOS last-modified timestamp.
	ModifiedTime uint16
	ModifiedDate uint16
	// CRC32 is the checksum of the uncompressed data.
	CRC32 uint32
	// CompressedSize and UncompressedSize are the entry's sizes in bytes.
	CompressedSize   int64
	UncompressedSize int64
	// InternalAttrs and ExternalAttrs are the attribute words; the meaning of ExternalAttrs depends on the
	// creator platform.
	InternalAttrs uint16
	ExternalAttrs uint32
	// DiskNumber is the disk on which the file starts.
	//
	// Since floppy disks aren't a thing anymore, this field is most likely 0.
	DiskNumber uint32
	// Offset is the local file header's offset relative to the start of the archive. Note the local copy of the
	// header need not match this record byte-for-byte; use DataOffset to find where the entry data really starts.
	Offset int64

	// Name is the raw filename bytes; interpreting them is the caller's business (FlagUTF8 says they are UTF-8).
	Name []byte
	// Comment is the raw file comment. Empty unless decoded in preserve mode.
	Comment []byte
	// Extra is the decoded extra-field chain with Zip64 blocks removed. Nil unless decoded in preserve mode.
	Extra []ExtraField
}

// fixedSizeCDFileHeader needs to be fixed size to work with binary.Read.
type fixedSizeCDFileHeader struct {
	Signature         uint32
	CreatorVersion    uint16
	ReaderVersion     uint16
	Flags             uint16
	Method            uint16
	ModifiedTime      uint16
	ModifiedDate      uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	FileNameLength    uint16
	ExtraFieldLength  uint16
	FileCommentLength uint16
	DiskNumber        uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	Offset            uint32
}

// ReadCDFileHeader decodes the next central directory file header from br.
//
// The boolean return value is false when the next bytes are not a central directory file header at all (probing: the
// sequential decode loop stops on the first non-matching signature, typically the EOCD); nothing is consumed in that
// case and err stays nil.
//
// With preserve false the extra-field chain and the comment are dropped after Zip64 extraction, which is all a
// read-only enumeration needs. With preserve true both survive on the returned header for round-trip use. Either way
// the reader is advanced to the declared end of the record, so a malformed extra-field chain cannot desynchronize the
// next read.
func ReadCDFileHeader(br *bufio.Reader, preserve bool) (*CDFileHeader, bool, error) {
	sig, err := br.Peek(sigLen)
	if err != nil {
		// a stream ending here simply has no more headers.
		return nil, false, nil
	}
	if binary.LittleEndian.Uint32(sig) != SigCDFileHeader {
		return nil, false, nil
	}

	buf := make([]byte, cdFileHeaderLen)
	if _, err = io.ReadFull(br, buf); err != nil {
		return nil, false, formatErrorf("read CD file header error: %v", err)
	}

	fs := &fixedSizeCDFileHeader{}
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, fs)

	h := &CDFileHeader{
		CreatorVersion:   fs.CreatorVersion,
		ReaderVersion:    fs.ReaderVersion,
		Flags:            fs.Flags,
		Method:           fs.Method,
		ModifiedTime:     fs.ModifiedTime,
		ModifiedDate:     fs.ModifiedDate,
		CRC32:            fs.CRC32,
		CompressedSize:   int64(fs.CompressedSize),
		UncompressedSize: int64(fs.UncompressedSize),
		InternalAttrs:    fs.InternalAttrs,
		ExternalAttrs:    fs.ExternalAttrs,
		DiskNumber:       uint32(fs.DiskNumber),
		Offset:           int64(fs.Offset),
	}

	n, m, k := int(fs.FileNameLength), int(fs.ExtraFieldLength), int(fs.FileCommentLength)

	var nmk []byte
	if preserve {
		nmk = make([]byte, n+m+k)
	} else {
		// enumeration is the hot path; scratch space for the variable-size tail comes from the pool and only
		// the name survives the call.
		bb := bytebufferpool.Get()
		defer bytebufferpool.Put(bb)

		if cap(bb.B) < n+m+k {
			bb.B = make([]byte, n+m+k)
		}
		nmk = bb.B[:n+m+k]
	}

	if _, err = io.ReadFull(br, nmk); err != nil {
		return nil, false, formatErrorf("read CD file header variable-size data error: %v", err)
	}

	h.Name = nmk[:n]
	if !preserve {
		h.Name = append([]byte(nil), h.Name...)
	}
	extraRaw := nmk[n : n+m]

	need := Zip64Need{
		UncompressedSize: fs.UncompressedSize == mask32,
		CompressedSize:   fs.CompressedSize == mask32,
		Offset:           fs.Offset == mask32,
		DiskNumber:       fs.DiskNumber == mask16,
	}

	var z Zip64Extra
	switch {
	case preserve:
		fields := ParseExtraFields(extraRaw)
		if need != (Zip64Need{}) {
			if fields, z, err = ExtractZip64(fields, need); err != nil {
				return nil, false, err
			}
		}
		h.Extra = fields
		h.Comment = nmk[n+m:]
	case need != (Zip64Need{}):
		if z, err = PeekZip64(extraRaw, need); err != nil {
			return nil, false, err
		}
	}

	if z.HasUncompressedSize {
		h.UncompressedSize = z.UncompressedSize
	}
	if z.HasCompressedSize {
		h.CompressedSize = z.CompressedSize
	}
	if z.HasOffset {
		h.Offset = z.Offset
	}
	if z.HasDiskNumber {
		h.DiskNumber = z.DiskNumber
	}

	return h, true, nil
}

// zip64Fields returns the Zip64 block covering every field of h that no longer fits its narrow width, along with the
// sentinel-substituted narrow values to write.
func (h *CDFileHeader) zip64Fields() (z Zip64Extra, compressed, uncompressed, offset uint32, disk uint16) {
	compressed = mask32
	if h.CompressedSize <= math.MaxUint32 {
		compressed = uint32(h.CompressedSize)
	} else {
		z.CompressedSize, z.HasCompressedSize = h.CompressedSize, true
	}

	uncompressed = mask32
	if h.UncompressedSize <= math.MaxUint32 {
		uncompressed = uint32(h.UncompressedSize)
	} else {
		z.UncompressedSize, z.HasUncompressedSize = h.UncompressedSize, true
	}

	offset = mask32
	if h.Offset <= math.MaxUint32 {
		offset = uint32(h.Offset)
	} else {
		z.Offset, z.HasOffset = h.Offset, true
	}

	disk = mask16
	if h.DiskNumber < uint32(mask16) {
		disk = uint16(h.DiskNumber)
	} else {
		z.DiskNumber, z.HasDiskNumber = h.DiskNumber, true
	}

	return
}

// Encode serializes the central directory file header, substituting sentinels for the narrow fields and appending a
// Zip64 extra-field block only when at least one field required widening.
func (h *CDFileHeader) Encode() []byte {
	z, compressed, uncompressed, offset, disk := h.zip64Fields()

	extra := h.Extra
	if z != (Zip64Extra{}) {
		extra = append(append([]ExtraField{}, h.Extra...), z.Encode())
	}
	extraRaw := EncodeExtraFields(extra)

	buf := make([]byte, cdFileHeaderLen, cdFileHeaderLen+len(h.Name)+len(extraRaw)+len(h.Comment))
	binary.LittleEndian.PutUint32(buf[0:4], SigCDFileHeader)
	binary.LittleEndian.PutUint16(buf[4:6], h.CreatorVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.ReaderVersion)
	binary.LittleEndian.PutUint16(buf[8:10], h.Flags)
	binary.LittleEndian.PutUint16(buf[10:12], h.Method)
	binary.LittleEndian.PutUint16(buf[12:14], h.ModifiedTime)
	binary.LittleEndian.PutUint16(buf[14:16], h.ModifiedDate)
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], compressed)
	binary.LittleEndian.PutUint32(buf[24:28], uncompressed)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.Name)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(extraRaw)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(h.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], disk)
	binary.LittleEndian.PutUint16(buf[36:38], h.InternalAttrs)
	binary.LittleEndian.PutUint32(buf[38:42], h.ExternalAttrs)
	binary.LittleEndian.PutUint32(buf[42:46], offset)

	buf = append(buf, h.Name...)
	buf = append(buf, extraRaw...)
	return append(buf, h.Comment...)
}
