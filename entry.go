package zipmeta

import (
	"io"
	"sync"
	"time"

	"github.com/nguyengg/zipmeta/record"
)

// Entry is a read-optimized view over one decoded central directory header plus the lazily-resolved offset of the
// entry's compressed data.
type Entry struct {
	record.CDFileHeader

	name    string
	archive *Archive

	offsetOnce sync.Once
	dataOffset int64
	offsetErr  error
}

// Name returns the entry name as decoded by the archive's name codec.
func (e *Entry) Name() string {
	return e.name
}

// Encrypted reports whether the entry's payload is encrypted. Encrypted payloads are detected but never decrypted.
func (e *Entry) Encrypted() bool {
	return e.Flags&record.FlagEncrypted != 0
}

// Modified returns the entry's packed MS-DOS timestamp as a time.Time with 2-second resolution.
func (e *Entry) Modified() time.Time {
	return msDosTimeToTime(e.ModifiedDate, e.ModifiedTime)
}

// DataOffset resolves the absolute offset of the entry's first compressed byte by re-reading the local copy of the
// file header, whose filename and extra-field lengths are not guaranteed to match the central directory copy's.
//
// The offset is resolved once on first call and cached.
func (e *Entry) DataOffset() (int64, error) {
	e.offsetOnce.Do(func() {
		e.dataOffset, e.offsetErr = record.DataOffset(e.archive.src, e.Offset)
	})
	return e.dataOffset, e.offsetErr
}

// Open returns a reader over the entry's uncompressed content, dispatching on the compression method tag.
//
// Returns ErrEncrypted for encrypted entries and ErrAlgorithm when no decompressor is registered for the method. The
// reader borrows the archive's stream: do not interleave reads from two entries of the same Archive unless the
// archive was opened from an io.ReaderAt via OpenReaderAt.
func (e *Entry) Open() (io.ReadCloser, error) {
	if e.Encrypted() {
		return nil, ErrEncrypted
	}

	dcomp := decompressor(e.Method)
	if dcomp == nil {
		return nil, ErrAlgorithm
	}

	offset, err := e.DataOffset()
	if err != nil {
		return nil, err
	}

	var src io.Reader
	if ra, ok := e.archive.src.(io.ReaderAt); ok {
		src = io.NewSectionReader(ra, offset, e.CompressedSize)
	} else {
		if _, err = e.archive.src.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		src = io.LimitReader(e.archive.src, e.CompressedSize)
	}

	return &entryReader{rc: dcomp(src), entry: e}, nil
}

// entryReader guards against truncated payloads: a clean EOF before the full uncompressed size has been produced is
// reported as io.ErrUnexpectedEOF.
type entryReader struct {
	rc    io.ReadCloser
	entry *Entry
	nread int64
	err   error
}

func (r *entryReader) Read(p []byte) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}

	n, err = r.rc.Read(p)
	r.nread += int64(n)
	if err == nil {
		return
	}
	if err == io.EOF && r.nread != r.entry.UncompressedSize {
		err = io.ErrUnexpectedEOF
	}

	r.err = err
	return
}

func (r *entryReader) Close() error {
	return r.rc.Close()
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
//
// taken from https://go.dev/src/archive/zip/struct.go.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}
