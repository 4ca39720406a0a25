package record

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// DefaultEOCDWindow is how far back from the end of the stream the EOCD signature is searched for: the fixed record
// plus the longest possible trailing comment.
const DefaultEOCDWindow int64 = eocdLen + math.MaxUint16

// EOCD is the end-of-central-directory record with any Zip64 widening already applied: every field holds the canonical
// 64-bit value, never the narrow on-disk one.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCD struct {
	// DiskNumber is the number of this disk. Always 0 for the single-disk archives this package supports.
	DiskNumber uint32
	// CDDisk is the disk where the central directory starts.
	CDDisk uint32
	// CDCountOnDisk is the number of central directory records on this disk.
	CDCountOnDisk uint64
	// CDCount is the total number of central directory records.
	CDCount uint64
	// CDSize is the size in bytes of the central directory.
	CDSize int64
	// CDOffset is the offset of the start of the central directory, relative to the start of the archive.
	CDOffset int64
	// Comment is the archive comment, at most 65535 bytes.
	Comment []byte
	// Zip64 reports whether any field was widened via a Zip64 EOCD record.
	Zip64 bool
}

// ScanOptions customises FindEOCD.
type ScanOptions struct {
	// MaxBytes caps the number of trailing bytes scanned for the EOCD signature.
	//
	// By default, DefaultEOCDWindow is used; values above it are pointless since a ZIP file cannot place the EOCD
	// any further from the end.
	MaxBytes int64

	// KeepComment controls whether the archive comment is kept or discarded.
	KeepComment bool
}

// fixedSizeEOCD needs to be fixed size to work with binary.Read.
type fixedSizeEOCD struct {
	Signature     uint32
	DiskNumber    uint16
	CDDisk        uint16
	CDCountOnDisk uint16
	CDCount       uint16
	CDSize        uint32
	CDOffset      uint32
	CommentLen    uint16
}

// fixedSizeEOCD64 is the 56-byte Zip64 end-of-central-directory record.
type fixedSizeEOCD64 struct {
	Signature     uint32
	RecordSize    uint64
	MadeByVersion uint16
	ReaderVersion uint16
	DiskNumber    uint32
	CDDisk        uint32
	CDCountOnDisk uint64
	CDCount       uint64
	CDSize        uint64
	CDOffset      uint64
}

// fixedSizeEOCD64Locator is the 20-byte record pointing at the Zip64 EOCD record.
type fixedSizeEOCD64Locator struct {
	Signature  uint32
	EOCD64Disk uint32
	Offset     uint64
	DiskCount  uint32
}

// FindEOCD scans backwards from the end of src for the end-of-central-directory record, following the Zip64 locator
// and record whenever any narrow EOCD field reads as its sentinel.
//
// Returns ErrNoEOCDFound if no signature exists within the scan window, ErrMultiDisk for split or spanned archives,
// and an error wrapping ErrFormat for any other structural problem.
func FindEOCD(src io.ReadSeeker, size int64, optFns ...func(*ScanOptions)) (*EOCD, error) {
	opts := &ScanOptions{
		MaxBytes:    DefaultEOCDWindow,
		KeepComment: false,
	}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.MaxBytes <= 0 || opts.MaxBytes > DefaultEOCDWindow {
		opts.MaxBytes = DefaultEOCDWindow
	}

	offset, found, err := FindSignature(src, size, SigEOCD, opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoEOCDFound
	}

	if _, err = src.Seek(offset, io.SeekStart); err != nil {
		return nil, formatErrorf("seek EOCD error: %v", err)
	}

	buf := make([]byte, eocdLen)
	if _, err = io.ReadFull(src, buf); err != nil {
		return nil, formatErrorf("read EOCD error: %v", err)
	}

	fs := &fixedSizeEOCD{}
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, fs)

	if fs.DiskNumber != fs.CDDisk || fs.CDCountOnDisk != fs.CDCount {
		return nil, ErrMultiDisk
	}

	r := &EOCD{
		DiskNumber:    uint32(fs.DiskNumber),
		CDDisk:        uint32(fs.CDDisk),
		CDCountOnDisk: uint64(fs.CDCountOnDisk),
		CDCount:       uint64(fs.CDCount),
		CDSize:        int64(fs.CDSize),
		CDOffset:      int64(fs.CDOffset),
	}

	if opts.KeepComment && fs.CommentLen > 0 {
		r.Comment = make([]byte, fs.CommentLen)
		if _, err = io.ReadFull(src, r.Comment); err != nil {
			return nil, formatErrorf("read EOCD comment error: %v", err)
		}
	}

	masked := fs.DiskNumber == mask16 || fs.CDDisk == mask16 ||
		fs.CDCountOnDisk == mask16 || fs.CDCount == mask16 ||
		fs.CDSize == mask32 || fs.CDOffset == mask32
	if !masked {
		return r, nil
	}

	if err = r.applyZip64(src, offset, fs); err != nil {
		return nil, err
	}

	return r, nil
}

// applyZip64 reads the Zip64 locator that immediately precedes the EOCD at eocdOffset, follows it to the Zip64 EOCD
// record, and overrides every masked narrow field with its widened counterpart.
func (r *EOCD) applyZip64(src io.ReadSeeker, eocdOffset int64, fs *fixedSizeEOCD) error {
	locOffset := eocdOffset - eocd64LocatorLen
	if locOffset < 0 {
		return formatErrorf("EOCD requires Zip64 but no room for a Zip64 locator")
	}

	if _, err := src.Seek(locOffset, io.SeekStart); err != nil {
		return formatErrorf("seek Zip64 locator error: %v", err)
	}

	buf := make([]byte, eocd64LocatorLen)
	if _, err := io.ReadFull(src, buf); err != nil {
		return formatErrorf("read Zip64 locator error: %v", err)
	}

	loc := &fixedSizeEOCD64Locator{}
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, loc)
	if loc.Signature != SigEOCD64Locator {
		return formatErrorf("mismatched Zip64 locator signature, got 0x%x, expected 0x%x", loc.Signature, SigEOCD64Locator)
	}

	// some Windows tooling writes DiskCount as 0 for a single-disk archive; treat it the same as 1.
	if loc.EOCD64Disk != 0 || loc.DiskCount > 1 {
		return ErrMultiDisk
	}
	if loc.Offset > math.MaxInt64 {
		return formatErrorf("Zip64 EOCD offset %d overflows int64", loc.Offset)
	}

	if _, err := src.Seek(int64(loc.Offset), io.SeekStart); err != nil {
		return formatErrorf("seek Zip64 EOCD error: %v", err)
	}

	buf = make([]byte, eocd64Len)
	if _, err := io.ReadFull(src, buf); err != nil {
		return formatErrorf("read Zip64 EOCD error: %v", err)
	}

	rec := &fixedSizeEOCD64{}
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, rec)
	if rec.Signature != SigEOCD64 {
		return formatErrorf("mismatched Zip64 EOCD signature, got 0x%x, expected 0x%x", rec.Signature, SigEOCD64)
	}

	if rec.DiskNumber != rec.CDDisk || rec.CDCountOnDisk != rec.CDCount {
		return ErrMultiDisk
	}
	if rec.CDSize > math.MaxInt64 || rec.CDOffset > math.MaxInt64 {
		return formatErrorf("Zip64 EOCD size or offset overflows int64")
	}

	// only fields that were masked defer to the Zip64 record; unmasked narrow values are already authoritative.
	if fs.DiskNumber == mask16 {
		r.DiskNumber = rec.DiskNumber
	}
	if fs.CDDisk == mask16 {
		r.CDDisk = rec.CDDisk
	}
	if fs.CDCountOnDisk == mask16 {
		r.CDCountOnDisk = rec.CDCountOnDisk
	}
	if fs.CDCount == mask16 {
		r.CDCount = rec.CDCount
	}
	if fs.CDSize == mask32 {
		r.CDSize = int64(rec.CDSize)
	}
	if fs.CDOffset == mask32 {
		r.CDOffset = int64(rec.CDOffset)
	}
	r.Zip64 = true

	return nil
}

// Zip64Required reports whether any field exceeds its narrow on-disk width, forcing a Zip64 EOCD record and locator.
func (r *EOCD) Zip64Required() bool {
	return r.CDCount > math.MaxUint16 || r.CDSize > math.MaxUint32 || r.CDOffset > math.MaxUint32
}

// Encode serializes the plain 22-byte EOCD record plus comment, substituting the 16/32-bit sentinel for any field that
// exceeds its narrow width. Disk numbers are always written as 0: this package only ever produces single, unsplit
// archives.
func (r *EOCD) Encode() []byte {
	count := uint16(mask16)
	if r.CDCount <= math.MaxUint16 {
		count = uint16(r.CDCount)
	}
	size := mask32
	if r.CDSize <= math.MaxUint32 {
		size = uint32(r.CDSize)
	}
	offset := mask32
	if r.CDOffset <= math.MaxUint32 {
		offset = uint32(r.CDOffset)
	}

	buf := make([]byte, eocdLen, eocdLen+len(r.Comment))
	binary.LittleEndian.PutUint32(buf[0:4], SigEOCD)
	binary.LittleEndian.PutUint16(buf[8:10], count)
	binary.LittleEndian.PutUint16(buf[10:12], count)
	binary.LittleEndian.PutUint32(buf[12:16], size)
	binary.LittleEndian.PutUint32(buf[16:20], offset)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(r.Comment)))

	return append(buf, r.Comment...)
}

// EncodeZip64Record serializes the 56-byte Zip64 EOCD record with full 64-bit fidelity.
func (r *EOCD) EncodeZip64Record() []byte {
	buf := make([]byte, eocd64Len)
	binary.LittleEndian.PutUint32(buf[0:4], SigEOCD64)
	// record size excludes the signature and the size field itself.
	binary.LittleEndian.PutUint64(buf[4:12], eocd64Len-12)
	binary.LittleEndian.PutUint16(buf[12:14], zip64Version)
	binary.LittleEndian.PutUint16(buf[14:16], zip64Version)
	binary.LittleEndian.PutUint64(buf[24:32], r.CDCount)
	binary.LittleEndian.PutUint64(buf[32:40], r.CDCount)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(r.CDSize))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(r.CDOffset))
	return buf
}

// EncodeZip64Locator serializes the 20-byte locator pointing at the Zip64 EOCD record written at recordOffset.
func (r *EOCD) EncodeZip64Locator(recordOffset int64) []byte {
	buf := make([]byte, eocd64LocatorLen)
	binary.LittleEndian.PutUint32(buf[0:4], SigEOCD64Locator)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(recordOffset))
	binary.LittleEndian.PutUint32(buf[16:20], 1)
	return buf
}

// EncodeTrailer serializes the whole archive trailer that follows the central directory: the Zip64 EOCD record and
// locator when any field requires widening, then the plain EOCD. The Zip64 record's offset is computed from CDOffset
// and CDSize since the record sits immediately after the central directory.
func (r *EOCD) EncodeTrailer() []byte {
	if !r.Zip64Required() {
		return r.Encode()
	}

	recordOffset := r.CDOffset + r.CDSize
	buf := r.EncodeZip64Record()
	buf = append(buf, r.EncodeZip64Locator(recordOffset)...)
	return append(buf, r.Encode()...)
}
