// Package container unwraps compressed uploads before they reach the record decoder.
package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// zipSignature is the first byte of a zip local file header ("PK\x03\x04").
const zipSignature = 'P'

// DefaultMaxRecordBytes bounds the inflated size of an archive entry.
const DefaultMaxRecordBytes int64 = 256 << 20

// ErrArchive is wrapped by every extraction failure.
var ErrArchive = errors.New("archive extraction failed")

// IsArchive reports whether data looks like a zip archive.
func IsArchive(data []byte) bool {
	return len(data) > 0 && data[0] == zipSignature
}

// Open returns the record bytes: the first entry of a zip archive, or data
// unchanged. An entry that inflates past maxBytes is rejected; maxBytes <= 0
// means DefaultMaxRecordBytes.
func Open(data []byte, maxBytes int64) ([]byte, error) {
	if !IsArchive(data) {
		return data, nil
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", ErrArchive, err)
	}
	if len(archive.File) == 0 {
		return nil, fmt.Errorf("%w: zip has no entries", ErrArchive)
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxRecordBytes
	}

	entry := archive.File[0]
	if entry.UncompressedSize64 > uint64(maxBytes) {
		return nil, fmt.Errorf("%w: entry %q declares %d bytes, limit is %d", ErrArchive, entry.Name, entry.UncompressedSize64, maxBytes)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open entry %q: %v", ErrArchive, entry.Name, err)
	}
	defer rc.Close()

	return readLimited(rc, entry.Name, maxBytes)
}

// readLimited reads r fully, failing once more than maxBytes arrive. Entry
// headers can understate the inflated size, so the count is checked here too.
func readLimited(r io.Reader, name string, maxBytes int64) ([]byte, error) {
	contents, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read entry %q: %v", ErrArchive, name, err)
	}
	if int64(len(contents)) > maxBytes {
		return nil, fmt.Errorf("%w: entry %q inflates past %d bytes", ErrArchive, name, maxBytes)
	}
	return contents, nil
}
