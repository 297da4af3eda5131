package monitor

// ValueClass is the classification of an observed value against the two
// known constants (placeholder and expected). It is derived, never stored.
type ValueClass int

const (
	IsPlaceholder ValueClass = iota
	IsExpected
	IsOtherNumeric
	IsOtherNonNumeric
)

func (c ValueClass) String() string {
	switch c {
	case IsPlaceholder:
		return "placeholder"
	case IsExpected:
		return "expected"
	case IsOtherNumeric:
		return "other_numeric"
	default:
		return "other_non_numeric"
	}
}

// Candidate reports whether the class counts toward detection and
// confirmation of a correction.
func (c ValueClass) Candidate() bool { return c == IsExpected || c == IsOtherNumeric }

// Classify maps raw onto exactly one ValueClass. Placeholder wins when the
// placeholder and expected constants are equal.
func Classify(raw, placeholder, expected string) ValueClass {
	switch {
	case raw == placeholder:
		return IsPlaceholder
	case raw == expected:
		return IsExpected
	case isDigits(raw):
		return IsOtherNumeric
	default:
		return IsOtherNonNumeric
	}
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
