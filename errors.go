package rigsolve

import "errors"

// Errors returned by the versioned binary decoders of persisted solver state.
var (
	// ErrUnknownVersion is returned when a payload carries a version tag the
	// reader does not implement. Readers never guess at newer layouts.
	ErrUnknownVersion = errors.New("rigsolve: unknown data version")

	// ErrTruncated is returned when a payload ends before all fields are read.
	ErrTruncated = errors.New("rigsolve: truncated data")
)
