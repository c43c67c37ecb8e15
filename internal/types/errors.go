package types

import "errors"

// Sentinel errors for segmenter operations.
var (
	// ErrBadInput indicates a structural or grammar violation in a segment.
	// Fatal to parsing that segment.
	ErrBadInput = errors.New("bad segment input")

	// ErrUnknownCriterion indicates a criterion key no parser recognized.
	// Only raised by the strict grammar.
	ErrUnknownCriterion = errors.New("unknown criterion")

	// ErrUnknownValue indicates a value type no parser recognized.
	// Only raised by the strict grammar.
	ErrUnknownValue = errors.New("unknown value")

	// ErrDuplicateKey indicates a grammar registered two parsers for one key.
	ErrDuplicateKey = errors.New("parser already registered for key")

	// ErrInvalidGeohash indicates a geohash with characters outside the base32 alphabet.
	ErrInvalidGeohash = errors.New("invalid geohash")

	// ErrInvalidDuration indicates a malformed ISO 8601 or human readable duration.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidDate indicates a date string matching no accepted layout.
	ErrInvalidDate = errors.New("invalid date")

	// ErrSegmentTooLarge indicates a segment definition exceeds MaxSegmentSize.
	ErrSegmentTooLarge = errors.New("segment exceeds maximum size")

	// ErrSegmentNotFound indicates a catalogue lookup matched no row.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrSegmentExists indicates an application already has a segment with that name.
	ErrSegmentExists = errors.New("segment name already in use")
)
