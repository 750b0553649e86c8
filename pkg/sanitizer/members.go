package sanitizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const MaxMembers = 200

// NormalizeMembers coerces a member count arriving from the wire into a
// strict positive integer. Clients have historically sent numbers, numeric
// strings and single-element arrays; everything else is rejected rather
// than silently defaulting.
func NormalizeMembers(raw any) (int, error) {
	switch v := raw.(type) {
	case nil:
		return 1, nil
	case int:
		return boundMembers(v)
	case int64:
		return boundMembers(int(v))
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("members must be a whole number, got %v", v)
		}
		return boundMembers(int(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 1, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("members must be numeric, got %q", v)
		}
		return boundMembers(n)
	case []any:
		if len(v) != 1 {
			return 0, fmt.Errorf("members array must contain exactly one value, got %d", len(v))
		}
		return NormalizeMembers(v[0])
	default:
		return 0, fmt.Errorf("members has unsupported type %T", raw)
	}
}

func boundMembers(n int) (int, error) {
	if n < 1 {
		return 0, fmt.Errorf("members must be at least 1, got %d", n)
	}
	if n > MaxMembers {
		return 0, fmt.Errorf("members must be at most %d, got %d", MaxMembers, n)
	}
	return n, nil
}
