package report

import (
	"errors"

	"moxie/internal/timeline"
)

// Failure kinds. Every error returned by Builder.Build wraps exactly one of these.
var (
	ErrDecompress     = errors.New("decompress upload")
	ErrDecode         = errors.New("decode encounter record")
	ErrEmptyEncounter = timeline.ErrEmptyEncounter
)

// Kind labels an error for logs, metrics and the uploads table.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDecompress):
		return "decompress"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrEmptyEncounter):
		return "empty_encounter"
	default:
		return "internal"
	}
}

// IsInputError reports whether err comes from the upload itself; retrying won't help.
func IsInputError(err error) bool {
	return errors.Is(err, ErrDecompress) || errors.Is(err, ErrDecode) || errors.Is(err, ErrEmptyEncounter)
}
