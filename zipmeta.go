// Package zipmeta locates, parses and serializes the index structures of ZIP archives: the end-of-central-directory
// records, the central directory, and the Zip64 and generic extra-field extensions, independent of the compression
// codecs used for entry payloads.
//
// The entry point is Open, which resolves the archive trailer exactly once and exposes a lazily-built, name-keyed
// entry catalog. The binary record layer lives in the record subpackage.
package zipmeta

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/nguyengg/zipmeta/record"
)

// Options customises how an archive is opened and scanned.
type Options struct {
	// MaxBytes caps the number of trailing bytes scanned for the EOCD signature.
	//
	// By default, the scan covers the whole range the format allows (the record plus a maximum-length comment).
	MaxBytes int64

	// KeepComment controls whether the archive comment is kept or discarded.
	//
	// By default, the zero value discards it.
	KeepComment bool

	// DecodeName converts raw filename bytes into the string used for catalog lookup. utf8 reports whether the
	// entry's general-purpose flags declared the name as UTF-8.
	//
	// By default, bytes are passed through unchanged, which is correct for UTF-8 names and leaves legacy code
	// pages to the caller.
	DecodeName func(name []byte, utf8 bool) string
}

// Archive is the index of a single ZIP archive backed by one seekable stream.
//
// The backing stream is exclusively owned by the Archive while it is in use; Archive is not safe for concurrent use
// across multiple goroutines.
type Archive struct {
	src  io.ReadSeeker
	size int64
	opts *Options
	eocd *record.EOCD

	buildOnce sync.Once
	buildErr  error
	entries   []*Entry
	byName    map[string]*Entry
}

// Open resolves the archive trailer of src: it locates the end-of-central-directory record by scanning backwards,
// validates it, and follows the Zip64 locator and record when any narrow field reads as a sentinel.
//
// The central directory itself is not read until the catalog is first accessed via Entries or Lookup.
//
// Returns record.ErrNoEOCDFound if src is most likely not a ZIP file, record.ErrMultiDisk for split or spanned
// archives, and errors wrapping record.ErrFormat for other structural problems.
func Open(src io.ReadSeeker, size int64, optFns ...func(*Options)) (*Archive, error) {
	opts := &Options{
		DecodeName: func(name []byte, _ bool) string { return string(name) },
	}
	for _, fn := range optFns {
		fn(opts)
	}

	eocd, err := record.FindEOCD(src, size, func(so *record.ScanOptions) {
		so.MaxBytes = opts.MaxBytes
		so.KeepComment = opts.KeepComment
	})
	if err != nil {
		return nil, err
	}

	return &Archive{src: src, size: size, opts: opts, eocd: eocd}, nil
}

// OpenReaderAt is Open for an io.ReaderAt and its size.
func OpenReaderAt(src io.ReaderAt, size int64, optFns ...func(*Options)) (*Archive, error) {
	return Open(io.NewSectionReader(src, 0, size), size, optFns...)
}

// Comment returns the archive comment. Empty unless the archive was opened with KeepComment.
func (a *Archive) Comment() []byte {
	return a.eocd.Comment
}

// EntryCount returns the entry count declared by the archive trailer, available without building the catalog.
func (a *Archive) EntryCount() uint64 {
	return a.eocd.CDCount
}

// Zip64 reports whether the archive trailer required Zip64 widening.
func (a *Archive) Zip64() bool {
	return a.eocd.Zip64
}

// Entries returns the catalog in central directory order, building it on first use.
//
// Duplicate names all appear here; only the first of each is reachable by Lookup.
func (a *Archive) Entries() ([]*Entry, error) {
	a.buildOnce.Do(a.build)
	return a.entries, a.buildErr
}

// Lookup returns the first catalog entry with the given name, building the catalog on first use.
//
// Returns ErrEntryNotFound if no entry has that name.
func (a *Archive) Lookup(name string) (*Entry, error) {
	a.buildOnce.Do(a.build)
	if a.buildErr != nil {
		return nil, a.buildErr
	}

	e, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf(`%w: "%s"`, ErrEntryNotFound, name)
	}
	return e, nil
}

// build decodes the central directory sequentially, exactly once. Headers are decoded in observe-and-discard mode
// until the first non-matching signature; the decoded count must equal what the trailer declared.
func (a *Archive) build() {
	if _, err := a.src.Seek(a.eocd.CDOffset, io.SeekStart); err != nil {
		a.buildErr = fmt.Errorf("seek central directory error: %w", err)
		return
	}

	var (
		br      = bufio.NewReaderSize(a.src, 16*1024)
		entries []*Entry
		byName  = make(map[string]*Entry)
	)

	for {
		h, ok, err := record.ReadCDFileHeader(br, false)
		if err != nil {
			a.buildErr = err
			return
		}
		if !ok {
			break
		}

		e := &Entry{
			CDFileHeader: *h,
			name:         a.opts.DecodeName(h.Name, h.Flags&record.FlagUTF8 != 0),
			archive:      a,
		}
		entries = append(entries, e)
		if _, dup := byName[e.name]; !dup {
			byName[e.name] = e
		}
	}

	if uint64(len(entries)) != a.eocd.CDCount {
		a.buildErr = fmt.Errorf("%w: decoded %d central directory records, trailer declares %d",
			record.ErrFormat, len(entries), a.eocd.CDCount)
		return
	}

	a.entries, a.byName = entries, byName
}
