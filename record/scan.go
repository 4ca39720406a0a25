package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// FindSignature scans backwards from the end of src for the given 4-byte signature.
//
// At most maxWindow trailing bytes are examined; the scan never reaches before the start of the stream. Returns the
// absolute offset of the last occurrence of the signature (the first one found scanning backwards) and whether one was
// found at all. A stream too short to hold the signature is a not-found, not an error.
func FindSignature(src io.ReadSeeker, size int64, sig uint32, maxWindow int64) (offset int64, found bool, err error) {
	if size < sigLen {
		return 0, false, nil
	}

	window := min(size, maxWindow)
	start := size - window

	if _, err = src.Seek(start, io.SeekStart); err != nil {
		return 0, false, formatErrorf("seek signature window error: %v", err)
	}

	buf := make([]byte, window)
	if _, err = io.ReadFull(src, buf); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, false, formatErrorf("read signature window error: %v", err)
	}

	var sigBytes [sigLen]byte
	binary.LittleEndian.PutUint32(sigBytes[:], sig)

	if i := bytes.LastIndex(buf, sigBytes[:]); i != -1 {
		return start + int64(i), true, nil
	}

	return 0, false, nil
}
