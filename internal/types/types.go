// Package types provides domain models shared across segmenter components.
//
// Zero-dependency design: types.go and errors.go use only encoding/json so the
// segmentation core can be embedded without pulling in storage or transport.
// ID utilities in ids.go import uuid but are isolated from the core.
package types

import "encoding/json"

// SegmentID represents a UUIDv7 catalogue segment identifier.
// String alias enables type safety while maintaining JSON string serialization.
type SegmentID string

// ApplicationID identifies the WonderPush application owning a segment.
// Resolved from the API key during authentication.
type ApplicationID string

// Definition represents a raw JSON segment definition.
// json.RawMessage wrapper preserves original bytes for storage and fingerprinting.
type Definition json.RawMessage

// MarshalJSON implements json.Marshaler.
func (d Definition) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.RawMessage(d).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Definition) UnmarshalJSON(data []byte) error {
	return (*json.RawMessage)(d).UnmarshalJSON(data)
}

// Resource limits enforced at the service and catalogue boundaries.
const (
	// MaxSegmentSize caps a segment definition.
	// Campaign segments are small hand-authored documents; 256KB is generous.
	MaxSegmentSize = 256 * 1024

	// MaxSnapshotSize caps a match request (installation, events, presence).
	MaxSnapshotSize = 4 * 1024 * 1024

	// MaxSegmentNameLength limits catalogue segment names.
	MaxSegmentNameLength = 256

	// MaxListedSegments bounds catalogue listings per application.
	MaxListedSegments = 10000
)
