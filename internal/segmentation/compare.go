// internal/segmentation/compare.go
package segmentation

import (
	"strings"
)

/*
 * Value comparison logic.
 *
 * Operands are normalized runtime values: nil, bool, int64, float64,
 * string, or composite JSON values.
 *
 * Equality:
 *   - numbers compare exactly as int64 when both sides are integers,
 *     otherwise as float64; a number never equals a non-number
 *   - other scalars compare by type and value
 *   - composite values never equal anything
 *
 * Ordering (compareOrdered) follows the type of the non-null side:
 *   - a null operand takes the zero value of the other side's type
 *     (false, 0 or "")
 *   - booleans order false < true
 *   - strings order by bytes
 *   - mismatched types are incomparable (ok=false)
 */

// Compare applies the comparator to value and target.
// Incomparable operands never match.
func Compare(cmp Comparator, value, target any) bool {
	c, ok := compareOrdered(value, target)
	if !ok {
		return false
	}
	switch cmp {
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	default:
		return false
	}
}

// compareEqual performs equality comparison with numeric type coercion.
func compareEqual(a, b any) bool {
	if isNumber(a) || isNumber(b) {
		c, ok := compareNumbers(a, b)
		return ok && c == 0
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	default:
		return false
	}
}

// compareOrdered performs three-way comparison (-1/0/1).
// Returns ok=false for incomparable types.
func compareOrdered(a, b any) (int, bool) {
	if a == nil && b == nil {
		return 0, true
	}
	if a == nil {
		c, ok := compareOrdered(b, nil)
		return -c, ok
	}

	switch av := a.(type) {
	case bool:
		if b == nil {
			b = false
		}
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case bv:
			return -1, true
		default:
			return 1, true
		}
	case int64, float64:
		if b == nil {
			b = int64(0)
		}
		return compareNumbers(a, b)
	case string:
		if b == nil {
			b = ""
		}
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	default:
		return 0, false
	}
}

// compareNumbers compares two normalized numbers.
// Both int64 compares exactly; any float64 side compares as float64.
func compareNumbers(a, b any) (int, bool) {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		return cmp3(ai, bi), true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok || !isNumber(a) || !isNumber(b) {
		return 0, false
	}
	return cmp3(af, bf), true
}

func cmp3[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePrefix checks if value starts with prefix (both must be strings).
// Returns false for non-string types.
func comparePrefix(value, prefix any) bool {
	vs, ok1 := value.(string)
	ps, ok2 := prefix.(string)
	if !ok1 || !ok2 {
		return false
	}
	return strings.HasPrefix(vs, ps)
}

// containsEqual checks if some element of set equals value.
func containsEqual(set []any, value any) bool {
	for _, elem := range set {
		if compareEqual(elem, value) {
			return true
		}
	}
	return false
}
