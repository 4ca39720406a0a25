package zipmeta

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/nguyengg/zipmeta/record"
	"github.com/stretchr/testify/assert"
)

// buildZip returns an in-memory archive with the given name/content pairs, all deflated.
func buildZip(t *testing.T, files [][2]string) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		assert.NoErrorf(t, err, "Create(%s) error = %v", f[0], err)

		_, err = w.Write([]byte(f[1]))
		assert.NoErrorf(t, err, "Write(%s) error = %v", f[0], err)
	}
	assert.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestOpen(t *testing.T) {
	data := buildZip(t, [][2]string{
		{"a.txt", "hello"},
		{"dir/b.txt", "world"},
		{"dir/c.txt", "!"},
	})

	a, err := Open(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "Open() error = %v", err)
	assert.Equal(t, uint64(3), a.EntryCount())
	assert.False(t, a.Zip64())

	entries, err := a.Entries()
	assert.NoErrorf(t, err, "Entries() error = %v", err)
	assert.Len(t, entries, 3)
	assert.Equal(t, "a.txt", entries[0].Name())
	assert.Equal(t, "dir/b.txt", entries[1].Name())
	assert.Equal(t, "dir/c.txt", entries[2].Name())

	e, err := a.Lookup("dir/b.txt")
	assert.NoErrorf(t, err, "Lookup() error = %v", err)
	assert.Equal(t, int64(5), e.UncompressedSize)

	_, err = a.Lookup("nope.txt")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestOpen_NotAZipFile(t *testing.T) {
	data := bytes.Repeat([]byte("not a zip "), 100)

	_, err := Open(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, record.ErrNoEOCDFound)
}

func TestArchive_EntryCountMismatch(t *testing.T) {
	data := buildZip(t, [][2]string{{"a.txt", "hello"}})

	// the EOCD is the trailing 22 bytes (no comment); bump both entry-count fields.
	eocd := data[len(data)-22:]
	binary.LittleEndian.PutUint16(eocd[8:10], 5)
	binary.LittleEndian.PutUint16(eocd[10:12], 5)

	a, err := Open(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "Open() error = %v", err)

	_, err = a.Entries()
	assert.ErrorIs(t, err, record.ErrFormat)
}

func TestArchive_DuplicateNames(t *testing.T) {
	data := buildZip(t, [][2]string{
		{"a.txt", "first"},
		{"a.txt", "second"},
	})

	a, err := Open(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "Open() error = %v", err)

	entries, err := a.Entries()
	assert.NoErrorf(t, err, "Entries() error = %v", err)
	assert.Len(t, entries, 2)

	// both are in the ordered catalog but name lookup only ever reaches the first.
	e, err := a.Lookup("a.txt")
	assert.NoErrorf(t, err, "Lookup() error = %v", err)
	assert.Same(t, entries[0], e)

	rc, err := e.Open()
	assert.NoErrorf(t, err, "Open() error = %v", err)
	content, err := io.ReadAll(rc)
	assert.NoErrorf(t, err, "ReadAll() error = %v", err)
	assert.NoError(t, rc.Close())
	assert.Equal(t, "first", string(content))
}

func TestEntry_Open(t *testing.T) {
	data := buildZip(t, [][2]string{
		{"a.txt", "hello deflate"},
		{"b.txt", "another entry"},
	})

	a, err := OpenReaderAt(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "OpenReaderAt() error = %v", err)

	for name, expected := range map[string]string{"a.txt": "hello deflate", "b.txt": "another entry"} {
		e, err := a.Lookup(name)
		assert.NoErrorf(t, err, "Lookup(%s) error = %v", name, err)

		rc, err := e.Open()
		assert.NoErrorf(t, err, "Open(%s) error = %v", name, err)

		content, err := io.ReadAll(rc)
		assert.NoErrorf(t, err, "ReadAll(%s) error = %v", name, err)
		assert.NoError(t, rc.Close())
		assert.Equal(t, expected, string(content))
	}
}

func TestEntry_DataOffset(t *testing.T) {
	data := buildZip(t, [][2]string{
		{"a.txt", "hello"},
		{"b.txt", "world"},
	})

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "zip.NewReader() error = %v", err)

	a, err := Open(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "Open() error = %v", err)

	for _, f := range zr.File {
		expected, err := f.DataOffset()
		assert.NoErrorf(t, err, "DataOffset(%s) error = %v", f.Name, err)

		e, lookupErr := a.Lookup(f.Name)
		assert.NoErrorf(t, lookupErr, "Lookup(%s) error = %v", f.Name, lookupErr)

		offset, offsetErr := e.DataOffset()
		assert.NoErrorf(t, offsetErr, "DataOffset(%s) error = %v", f.Name, offsetErr)
		assert.Equal(t, expected, offset)
	}
}

func TestEntry_Encrypted(t *testing.T) {
	data := buildZip(t, [][2]string{{"a.txt", "hello"}})

	// flip the encryption bit in the central directory copy of the flags word.
	i := bytes.Index(data, binary.LittleEndian.AppendUint32(nil, record.SigCDFileHeader))
	assert.GreaterOrEqual(t, i, 0)
	flags := binary.LittleEndian.Uint16(data[i+8 : i+10])
	binary.LittleEndian.PutUint16(data[i+8:i+10], flags|record.FlagEncrypted)

	a, err := Open(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "Open() error = %v", err)

	e, err := a.Lookup("a.txt")
	assert.NoErrorf(t, err, "Lookup() error = %v", err)
	assert.True(t, e.Encrypted())

	_, err = e.Open()
	assert.ErrorIs(t, err, ErrEncrypted)
}

func TestEntry_UnsupportedMethod(t *testing.T) {
	data := buildZip(t, [][2]string{{"a.txt", "hello"}})

	i := bytes.Index(data, binary.LittleEndian.AppendUint32(nil, record.SigCDFileHeader))
	assert.GreaterOrEqual(t, i, 0)
	binary.LittleEndian.PutUint16(data[i+10:i+12], record.MethodDeflate64)

	a, err := Open(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "Open() error = %v", err)

	e, err := a.Lookup("a.txt")
	assert.NoErrorf(t, err, "Lookup() error = %v", err)

	_, err = e.Open()
	assert.ErrorIs(t, err, ErrAlgorithm)
}

func TestOpen_KeepComment(t *testing.T) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	assert.NoError(t, zw.SetComment("hello comment"))
	assert.NoError(t, zw.Close())

	data := buf.Bytes()
	a, err := Open(bytes.NewReader(data), int64(len(data)), func(opts *Options) {
		opts.KeepComment = true
	})
	assert.NoErrorf(t, err, "Open() error = %v", err)
	assert.Equal(t, "hello comment", string(a.Comment()))
}
