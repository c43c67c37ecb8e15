// internal/segmentation/resolve.go
package segmentation

import (
	"strconv"
	"strings"
)

/*
 * Field path resolution for runtime documents.
 *
 * Walks a document following path parts: object parts select keys, array
 * parts must be decimal indices, and anything else stops the walk with no
 * value. The leaf becomes a value list:
 *   - array: its elements, nulls skipped
 *   - null or missing: empty list
 *   - anything else: a single element
 *
 * Custom date fields (custom.*date_*, at least two parts) get string
 * elements that parse as absolute dates replaced by epoch milliseconds,
 * so they compare with date literals.
 */

// ResolvePath walks doc along path and returns the leaf as a value list.
func ResolvePath(doc map[string]any, path []string) []any {
	var current any = doc
	for _, part := range path {
		current = step(current, part)
		if current == nil {
			break
		}
	}

	values := leafValues(current)
	if isCustomDatePath(path) {
		values = coerceCustomDates(values)
	}
	return values
}

// step descends one path part into current. Returns nil when the part does not apply.
func step(current any, part string) any {
	switch v := current.(type) {
	case map[string]any:
		return v[part]
	case []any:
		index, err := strconv.Atoi(part)
		if err != nil || index < 0 || index >= len(v) {
			return nil
		}
		return v[index]
	default:
		return nil
	}
}

func leafValues(leaf any) []any {
	switch v := leaf.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(v))
		for _, elem := range v {
			if elem != nil {
				out = append(out, elem)
			}
		}
		return out
	default:
		return []any{v}
	}
}

func isCustomDatePath(path []string) bool {
	return len(path) >= 2 && path[0] == "custom" && strings.HasPrefix(path[len(path)-1], "date_")
}

func coerceCustomDates(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
		s, ok := v.(string)
		if !ok {
			continue
		}
		if ms, ok, err := ParseAbsoluteDate(s); ok && err == nil {
			out[i] = ms
		}
	}
	return out
}
