package doctype

import "strings"

// Validate applies the named validator (already checked against
// validValidators by the catalog loader) to a normalized field value. It
// reports whether the value is well-formed for its field, not whether it
// is correct — that judgment belongs to the ground-truth registry.
func Validate(name, normalizedValue string) bool {
	switch name {
	case "", "none":
		return true
	case "non_empty":
		return strings.TrimSpace(normalizedValue) != ""
	case "valid_date":
		_, err := DateToISO(normalizedValue)
		return err == nil || isISODate(normalizedValue)
	case "valid_currency":
		return isDecimalAmount(normalizedValue)
	case "min_length_3":
		return len([]rune(strings.TrimSpace(normalizedValue))) >= 3
	default:
		return true
	}
}

func isISODate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isDecimalAmount(s string) bool {
	if s == "" {
		return false
	}
	dotSeen := false
	for i, r := range s {
		switch {
		case r == '-' && i == 0:
			continue
		case r == '.' && !dotSeen:
			dotSeen = true
		case r >= '0' && r <= '9':
			continue
		default:
			return false
		}
	}
	return true
}
