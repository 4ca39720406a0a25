package record

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEOCD_Encode(t *testing.T) {
	r := &EOCD{CDCountOnDisk: 3, CDCount: 3, CDSize: 200, CDOffset: 100}

	expected := []byte{
		0x50, 0x4b, 0x05, 0x06,
		0x00, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x03, 0x00,
		0xc8, 0x00, 0x00, 0x00,
		0x64, 0x00, 0x00, 0x00,
		0x00, 0x00,
	}
	assert.Equal(t, expected, r.Encode())
}

func TestFindEOCD(t *testing.T) {
	trailer := (&EOCD{CDCountOnDisk: 3, CDCount: 3, CDSize: 200, CDOffset: 100}).Encode()

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "bare trailer",
			data: trailer,
		},
		{
			name: "trailer after arbitrary prefix",
			data: append(bytes.Repeat([]byte{0x42}, 300), trailer...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := FindEOCD(bytes.NewReader(tt.data), int64(len(tt.data)))
			assert.NoErrorf(t, err, "FindEOCD() error = %v", err)
			assert.Equal(t, &EOCD{CDCountOnDisk: 3, CDCount: 3, CDSize: 200, CDOffset: 100}, r)
		})
	}
}

func TestFindEOCD_Comment(t *testing.T) {
	comment := []byte("built by tests")
	trailer := (&EOCD{CDCount: 1, CDCountOnDisk: 1, CDSize: 46, CDOffset: 10, Comment: comment}).Encode()

	t.Run("kept", func(t *testing.T) {
		r, err := FindEOCD(bytes.NewReader(trailer), int64(len(trailer)), func(opts *ScanOptions) {
			opts.KeepComment = true
		})
		assert.NoErrorf(t, err, "FindEOCD() error = %v", err)
		assert.Equal(t, comment, r.Comment)
	})

	t.Run("discarded by default", func(t *testing.T) {
		r, err := FindEOCD(bytes.NewReader(trailer), int64(len(trailer)))
		assert.NoErrorf(t, err, "FindEOCD() error = %v", err)
		assert.Nil(t, r.Comment)
	})
}

func TestFindEOCD_NotFound(t *testing.T) {
	data := bytes.Repeat([]byte{0x11}, 64)

	_, err := FindEOCD(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, ErrNoEOCDFound)
}

func TestFindEOCD_MultiDisk(t *testing.T) {
	trailer := (&EOCD{CDCount: 2, CDCountOnDisk: 2, CDSize: 92, CDOffset: 0}).Encode()
	// number of this disk = 1, disk with CD start = 0.
	binary.LittleEndian.PutUint16(trailer[4:6], 1)

	_, err := FindEOCD(bytes.NewReader(trailer), int64(len(trailer)))
	assert.ErrorIs(t, err, ErrMultiDisk)
}

func TestFindEOCD_Zip64(t *testing.T) {
	// an entry count above 0xffff forces the Zip64 record and locator; lay the trailer out at its computed
	// offset (CDOffset+CDSize) the way EncodeTrailer assumes.
	r := &EOCD{CDCountOnDisk: 0x10001, CDCount: 0x10001, CDSize: 200, CDOffset: 100}
	assert.True(t, r.Zip64Required())

	data := append(bytes.Repeat([]byte{0}, 300), r.EncodeTrailer()...)

	decoded, err := FindEOCD(bytes.NewReader(data), int64(len(data)))
	assert.NoErrorf(t, err, "FindEOCD() error = %v", err)
	assert.True(t, decoded.Zip64)
	assert.Equal(t, uint64(0x10001), decoded.CDCount)
	assert.Equal(t, uint64(0x10001), decoded.CDCountOnDisk)
	assert.Equal(t, int64(200), decoded.CDSize)
	assert.Equal(t, int64(100), decoded.CDOffset)
}

func TestFindEOCD_MaskedWithoutLocator(t *testing.T) {
	// sentinel count but nothing before the EOCD to hold a locator.
	trailer := (&EOCD{CDCountOnDisk: 0x10001, CDCount: 0x10001, CDSize: 200, CDOffset: 100}).Encode()

	_, err := FindEOCD(bytes.NewReader(trailer), int64(len(trailer)))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestFindEOCD_SmallArchiveWritesNoZip64(t *testing.T) {
	r := &EOCD{CDCountOnDisk: 0xfffe, CDCount: 0xfffe, CDSize: 1 << 20, CDOffset: 1 << 30}

	assert.False(t, r.Zip64Required())
	assert.Len(t, r.EncodeTrailer(), eocdLen)
}
