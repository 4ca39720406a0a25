package record

import "encoding/binary"

// ExtraField is a single tag-length-value block from a header's extra-field region.
//
// Tags other than the well-known ones are kept opaque so that a header can round-trip byte-for-byte.
type ExtraField struct {
	Tag  uint16
	Data []byte
}

// ParseExtraFields decodes the back-to-back (tag, length, data) sequence in data.
//
// Real-world encoders emit truncated chains, so running out of bytes mid-record is not an error: parsing stops at the
// first block whose tag/length prefix or declared payload no longer fits, and the well-formed prefix decoded so far is
// returned.
func ParseExtraFields(data []byte) []ExtraField {
	var fields []ExtraField

	for len(data) >= 4 {
		tag := binary.LittleEndian.Uint16(data[0:2])
		n := int(binary.LittleEndian.Uint16(data[2:4]))
		if n > len(data)-4 {
			break
		}

		fields = append(fields, ExtraField{Tag: tag, Data: data[4 : 4+n]})
		data = data[4+n:]
	}

	return fields
}

// EncodeExtraFields concatenates the (tag, length, data) encoding of every field in list order.
func EncodeExtraFields(fields []ExtraField) []byte {
	buf := make([]byte, 0, ExtraFieldsSize(fields))

	for _, f := range fields {
		var hdr [4]byte
		binary.LittleEndian.PutUint16(hdr[0:2], f.Tag)
		binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(f.Data)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, f.Data...)
	}

	return buf
}

// ExtraFieldsSize returns the total encoded size of the given fields.
func ExtraFieldsSize(fields []ExtraField) int {
	n := 0
	for _, f := range fields {
		n += 4 + len(f.Data)
	}
	return n
}
