package zipmeta

import "errors"

var (
	// ErrAlgorithm is returned by Entry.Open when no decompressor is registered for the entry's method tag.
	ErrAlgorithm = errors.New("unsupported compression algorithm")
	// ErrEncrypted is returned by Entry.Open for entries whose encryption flag is set.
	ErrEncrypted = errors.New("encrypted entries are not supported")
	// ErrEntryNotFound is returned by Archive.Lookup when no entry has the requested name.
	ErrEntryNotFound = errors.New("no entry with that name in the archive")
)
