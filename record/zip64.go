package record

import (
	"encoding/binary"
	"math"
)

// TagZip64 is the extra-field tag reserved for the Zip64 extended information block.
const TagZip64 uint16 = 0x0001

// Zip64Need says which of the owning record's narrow fields were masked to their sentinel and therefore must be read
// from the Zip64 extra field. The block stores values positionally, so the set of masked fields determines both which
// bytes to consume and the payload size a conforming encoder would have written.
type Zip64Need struct {
	UncompressedSize bool
	CompressedSize   bool
	Offset           bool
	DiskNumber       bool
}

// Size returns the payload size a conforming encoder writes for this combination of fields.
func (n Zip64Need) Size() int {
	size := 0
	if n.UncompressedSize {
		size += 8
	}
	if n.CompressedSize {
		size += 8
	}
	if n.Offset {
		size += 8
	}
	if n.DiskNumber {
		size += 4
	}
	return size
}

// Zip64Extra holds the 64-bit overrides decoded from (or to be encoded into) a tag-1 extra field. Each field carries
// its own presence bit; an absent field means the owning record's narrow value stands.
type Zip64Extra struct {
	UncompressedSize    int64
	HasUncompressedSize bool
	CompressedSize      int64
	HasCompressedSize   bool
	Offset              int64
	HasOffset           bool
	DiskNumber          uint32
	HasDiskNumber       bool
}

// zip64FullLen is the payload size when all four positional fields are present (8+8+8+4).
const zip64FullLen = 28

// decodeZip64 reads the positional fields of a tag-1 payload.
//
// A field's bytes are consumed only if its owner was masked, or if the payload is large enough to hold all four fields
// (the slightly invalid but complete convention of some encoders) in which case unwanted fields are read and discarded
// to keep the cursor aligned. Once the remaining payload is too short for the next field that must be consumed, wanted
// or not, decoding stops: fields decoded up to that point stand, and nothing past the truncation is touched since the
// leftover bytes no longer line up with any position.
func decodeZip64(data []byte, need Zip64Need) (z Zip64Extra, err error) {
	all := len(data) >= zip64FullLen

	// ok is false once the payload is truncated mid-field; err is only ever the sign-bit overflow.
	next64 := func(want bool) (v int64, has, ok bool, err error) {
		if !want && !all {
			return 0, false, true, nil
		}
		if len(data) < 8 {
			return 0, false, false, nil
		}
		u := binary.LittleEndian.Uint64(data)
		data = data[8:]
		if !want {
			return 0, false, true, nil
		}
		if u > math.MaxInt64 {
			return 0, false, false, formatErrorf("Zip64 field value %d overflows int64", u)
		}
		return int64(u), true, true, nil
	}

	var ok bool
	if z.UncompressedSize, z.HasUncompressedSize, ok, err = next64(need.UncompressedSize); !ok {
		return z, err
	}
	if z.CompressedSize, z.HasCompressedSize, ok, err = next64(need.CompressedSize); !ok {
		return z, err
	}
	if z.Offset, z.HasOffset, ok, err = next64(need.Offset); !ok {
		return z, err
	}

	if (need.DiskNumber || all) && len(data) >= 4 {
		v := binary.LittleEndian.Uint32(data)
		if need.DiskNumber {
			z.DiskNumber, z.HasDiskNumber = v, true
		}
	}

	return z, nil
}

// chooseZip64 picks which of the (possibly several) tag-1 payloads to decode: the first whose size matches what a
// conforming encoder writes for need, else simply the first. No payload at all yields an all-absent Zip64Extra.
func chooseZip64(payloads [][]byte, need Zip64Need) (Zip64Extra, error) {
	if len(payloads) == 0 {
		return Zip64Extra{}, nil
	}

	want := need.Size()
	for _, p := range payloads {
		if len(p) == want {
			return decodeZip64(p, need)
		}
	}

	return decodeZip64(payloads[0], need)
}

// PeekZip64 scans a raw extra-field byte range for a Zip64 block and decodes it without building an extra-field list.
// Used by callers that discard unknown extra fields anyway.
func PeekZip64(extra []byte, need Zip64Need) (Zip64Extra, error) {
	var payloads [][]byte

	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		n := int(binary.LittleEndian.Uint16(extra[2:4]))
		if n > len(extra)-4 {
			break
		}
		if tag == TagZip64 {
			payloads = append(payloads, extra[4:4+n])
		}
		extra = extra[4+n:]
	}

	return chooseZip64(payloads, need)
}

// ExtractZip64 removes every Zip64 block from fields and decodes the preferred one, returning the remaining fields for
// round-tripping. Callers that keep extra fields must use this form so that re-encoding does not duplicate the block.
func ExtractZip64(fields []ExtraField, need Zip64Need) ([]ExtraField, Zip64Extra, error) {
	var (
		rest     []ExtraField
		payloads [][]byte
	)

	for _, f := range fields {
		if f.Tag == TagZip64 {
			payloads = append(payloads, f.Data)
			continue
		}
		rest = append(rest, f)
	}

	z, err := chooseZip64(payloads, need)
	return rest, z, err
}

// Encode returns the tag-1 extra field for the present fields, in fixed positional order. Absent fields are omitted
// entirely rather than encoded as placeholders.
func (z Zip64Extra) Encode() ExtraField {
	data := make([]byte, 0, zip64FullLen)

	if z.HasUncompressedSize {
		data = binary.LittleEndian.AppendUint64(data, uint64(z.UncompressedSize))
	}
	if z.HasCompressedSize {
		data = binary.LittleEndian.AppendUint64(data, uint64(z.CompressedSize))
	}
	if z.HasOffset {
		data = binary.LittleEndian.AppendUint64(data, uint64(z.Offset))
	}
	if z.HasDiskNumber {
		data = binary.LittleEndian.AppendUint32(data, z.DiskNumber)
	}

	return ExtraField{Tag: TagZip64, Data: data}
}
