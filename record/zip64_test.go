package record

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func appendUint64(b []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(b, v) }

func TestPeekZip64(t *testing.T) {
	payload := appendUint64(nil, 5_000_000_000)

	tests := []struct {
		name     string
		extra    []byte
		need     Zip64Need
		expected Zip64Extra
	}{
		{
			name:     "single masked field",
			extra:    EncodeExtraFields([]ExtraField{{Tag: TagZip64, Data: payload}}),
			need:     Zip64Need{UncompressedSize: true},
			expected: Zip64Extra{UncompressedSize: 5_000_000_000, HasUncompressedSize: true},
		},
		{
			name: "all four fields present regardless of masks",
			extra: EncodeExtraFields([]ExtraField{{Tag: TagZip64, Data: binary.LittleEndian.AppendUint32(
				appendUint64(appendUint64(appendUint64(nil, 10), 20), 30), 2)}}),
			need: Zip64Need{CompressedSize: true},
			expected: Zip64Extra{
				CompressedSize:    20,
				HasCompressedSize: true,
			},
		},
		{
			name:  "payload too short for the second needed field stops early",
			extra: EncodeExtraFields([]ExtraField{{Tag: TagZip64, Data: appendUint64(nil, 10)}}),
			need:  Zip64Need{UncompressedSize: true, CompressedSize: true},
			expected: Zip64Extra{
				UncompressedSize:    10,
				HasUncompressedSize: true,
			},
		},
		{
			name: "trailing bytes after a truncated field never reach the disk number position",
			extra: EncodeExtraFields([]ExtraField{{Tag: TagZip64, Data: binary.LittleEndian.AppendUint32(
				appendUint64(nil, 7), 99)}}),
			need: Zip64Need{UncompressedSize: true, CompressedSize: true, DiskNumber: true},
			expected: Zip64Extra{
				UncompressedSize:    7,
				HasUncompressedSize: true,
			},
		},
		{
			name:     "no Zip64 block at all",
			extra:    EncodeExtraFields([]ExtraField{{Tag: 0x000a, Data: []byte{1, 2}}}),
			need:     Zip64Need{UncompressedSize: true},
			expected: Zip64Extra{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z, err := PeekZip64(tt.extra, tt.need)
			assert.NoErrorf(t, err, "PeekZip64() error = %v", err)
			assert.Equal(t, tt.expected, z)
		})
	}
}

func TestPeekZip64_NegativeValue(t *testing.T) {
	// the sign bit set on a value that was unsigned on disk means the field cannot be represented.
	extra := EncodeExtraFields([]ExtraField{{Tag: TagZip64, Data: appendUint64(nil, 1<<63)}})

	_, err := PeekZip64(extra, Zip64Need{UncompressedSize: true})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestExtractZip64(t *testing.T) {
	// two Zip64 blocks: the one whose size matches the requested field combination wins even though it comes
	// second, and both are removed from the list.
	fields := []ExtraField{
		{Tag: TagZip64, Data: []byte{1, 2, 3, 4}},
		{Tag: 0x000a, Data: []byte{9}},
		{Tag: TagZip64, Data: appendUint64(nil, 42)},
	}

	rest, z, err := ExtractZip64(fields, Zip64Need{Offset: true})
	assert.NoErrorf(t, err, "ExtractZip64() error = %v", err)
	assert.Equal(t, []ExtraField{{Tag: 0x000a, Data: []byte{9}}}, rest)
	assert.Equal(t, Zip64Extra{Offset: 42, HasOffset: true}, z)
}

func TestExtractZip64_NoBlock(t *testing.T) {
	fields := []ExtraField{{Tag: 0x000a, Data: []byte{9}}}

	rest, z, err := ExtractZip64(fields, Zip64Need{UncompressedSize: true})
	assert.NoErrorf(t, err, "ExtractZip64() error = %v", err)
	assert.Equal(t, fields, rest)
	assert.Equal(t, Zip64Extra{}, z)
}

func TestZip64Extra_EncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		z    Zip64Extra
		need Zip64Need
	}{
		{
			name: "all fields",
			z: Zip64Extra{
				UncompressedSize:    5_000_000_000,
				HasUncompressedSize: true,
				CompressedSize:      4_999_999_999,
				HasCompressedSize:   true,
				Offset:              1 << 33,
				HasOffset:           true,
				DiskNumber:          7,
				HasDiskNumber:       true,
			},
			need: Zip64Need{UncompressedSize: true, CompressedSize: true, Offset: true, DiskNumber: true},
		},
		{
			name: "offset only",
			z:    Zip64Extra{Offset: 1 << 40, HasOffset: true},
			need: Zip64Need{Offset: true},
		},
		{
			name: "sizes only",
			z: Zip64Extra{
				UncompressedSize:    1,
				HasUncompressedSize: true,
				CompressedSize:      2,
				HasCompressedSize:   true,
			},
			need: Zip64Need{UncompressedSize: true, CompressedSize: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.z.Encode()
			assert.Equal(t, TagZip64, f.Tag)
			assert.Len(t, f.Data, tt.need.Size())

			decoded, err := decodeZip64(f.Data, tt.need)
			assert.NoErrorf(t, err, "decodeZip64() error = %v", err)
			assert.Equal(t, tt.z, decoded)
		})
	}
}
