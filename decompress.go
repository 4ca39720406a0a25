package zipmeta

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/nguyengg/zipmeta/record"
	"github.com/ulikunitz/xz/lzma"
)

// Decompressor returns a reader over the uncompressed content of r, where r reads exactly the entry's compressed
// bytes. Codecs are external collaborators dispatched purely by method tag; the record layer never calls them.
type Decompressor func(r io.Reader) io.ReadCloser

var (
	decompressorsMu sync.RWMutex
	decompressors   = map[uint16]Decompressor{
		record.MethodStored:   io.NopCloser,
		record.MethodDeflated: func(r io.Reader) io.ReadCloser { return flate.NewReader(r) },
		record.MethodBZIP2:    newBzip2Reader,
		record.MethodLZMA:     newLZMAReader,
	}
)

// RegisterDecompressor registers or replaces the decompressor for a method tag. Pass nil to remove one; methods
// without a decompressor (Deflate64 out of the box) make Entry.Open return ErrAlgorithm.
func RegisterDecompressor(method uint16, d Decompressor) {
	decompressorsMu.Lock()
	defer decompressorsMu.Unlock()

	if d == nil {
		delete(decompressors, method)
		return
	}
	decompressors[method] = d
}

func decompressor(method uint16) Decompressor {
	decompressorsMu.RLock()
	defer decompressorsMu.RUnlock()
	return decompressors[method]
}

func newBzip2Reader(r io.Reader) io.ReadCloser {
	br, err := bzip2.NewReader(r, nil)
	if err != nil {
		return &errReader{err: err}
	}
	return br
}

// newLZMAReader bridges the ZIP LZMA payload (2-byte encoder version, 2-byte properties size, then the properties) to
// the classic .lzma header lzma.NewReader expects, with the uncompressed size left as unknown.
func newLZMAReader(r io.Reader) io.ReadCloser {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return &errReader{err: err}
	}

	n := int(binary.LittleEndian.Uint16(hdr[2:4]))
	props := make([]byte, n, n+8)
	if _, err := io.ReadFull(r, props); err != nil {
		return &errReader{err: err}
	}
	for i := 0; i < 8; i++ {
		props = append(props, 0xff) // unknown size; the stream's end-of-stream marker terminates it.
	}

	zr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(props), r))
	if err != nil {
		return &errReader{err: err}
	}
	return io.NopCloser(zr)
}

// errReader defers a decompressor construction error to the first Read.
type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }
func (r *errReader) Close() error             { return nil }
