// internal/segmentation/data.go
package segmentation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

/*
 * Runtime snapshot and JSON decoding.
 *
 * Data is the evaluation input assembled by the caller for each match:
 * installation document, tracked events (oldest first), optional user
 * document, presence window and last app open time. The evaluator never
 * mutates it.
 *
 * Documents are decoded with number preservation. Integers fitting in
 * int64 stay int64 so comparisons at the int64 edge remain exact; any other
 * number becomes float64. Decoded values are therefore one of: nil, bool,
 * int64, float64, string, []any, map[string]any.
 */

// PresenceInfo is the presence window of the current installation.
// Times are epoch milliseconds.
type PresenceInfo struct {
	FromDate    int64 `json:"fromDate"`
	UntilDate   int64 `json:"untilDate"`
	ElapsedTime int64 `json:"elapsedTime"`
}

// Data is the runtime snapshot a segment is evaluated against.
type Data struct {
	Installation    map[string]any
	Events          []map[string]any
	User            map[string]any // nil when unknown
	Presence        *PresenceInfo  // nil when unknown
	LastAppOpenDate int64          // epoch ms, 0 when never opened
}

// EmptyData returns a snapshot with an empty installation and no events.
func EmptyData() *Data {
	return &Data{Installation: map[string]any{}}
}

// DecodeJSON decodes a single JSON document with number preservation.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected trailing data after JSON document")
	}
	return Normalize(v), nil
}

// DecodeObject decodes a JSON document that must be an object.
func DecodeObject(data []byte) (map[string]any, error) {
	v, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return obj, nil
}

// Normalize converts numbers in a decoded document to int64 or float64.
// Accepts documents decoded with or without UseNumber, as well as values
// built by hand with Go integer and float types.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = Normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = Normalize(child)
		}
		return out
	default:
		if n, ok := toNumber(v); ok {
			return n
		}
		return v
	}
}

// toNumber converts any Go numeric representation to int64 or float64.
func toNumber(v any) (any, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), true
		}
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
		return float64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
		return float64(n), true
	case float32:
		return toNumber(float64(n))
	case json.Number:
		s := string(n)
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, true
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// isNumber reports whether v is a normalized number.
func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}
