package store

// Properties is the sparse property map held by a single row. Values are
// scalars (string, bool, integer, float), ordered arrays of scalars, or the
// RemoveProperty sentinel.
type Properties map[string]any

// Reserved property names maintained by adapters.
const (
	// KeyField holds the logical row key inside the persisted row, under an
	// adapter-reserved name distinct from the backend's native primary key.
	KeyField = "_key"

	// PathField marks a row as hierarchically addressed. Writes that include
	// it cause the adapter to maintain ParentHashField.
	PathField = "_path"

	// ParentHashField holds RowHash of the row's parent path.
	ParentHashField = "_parentHash"
)

type removeSentinel struct{}

// RemoveProperty is the removal sentinel. Placing it in a value map passed
// to Insert deletes that single property while leaving all others
// untouched. It is distinct from nil: nil values are skipped entirely.
var RemoveProperty any = removeSentinel{}

// IsRemove reports whether v is the removal sentinel.
func IsRemove(v any) bool {
	_, ok := v.(removeSentinel)
	return ok
}

// ValidValue reports whether v is a legal property value.
func ValidValue(v any) bool {
	switch v := v.(type) {
	case removeSentinel, string, bool, int, int32, int64, float64:
		return true
	case []string:
		return true
	case []any:
		for _, e := range v {
			switch e.(type) {
			case string, bool, int, int32, int64, float64:
			default:
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CopyProperties returns a copy of p deep enough that array values do not
// alias the original. A nil map copies to an empty map.
func CopyProperties(p Properties) Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		switch v := v.(type) {
		case []string:
			out[k] = append([]string(nil), v...)
		case []any:
			out[k] = append([]any(nil), v...)
		default:
			out[k] = v
		}
	}
	return out
}

// AsStringSlice normalizes an array-valued property to []string. Scalar
// strings come back as a single-element slice; anything else is nil.
func AsStringSlice(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}
