// Package validation holds the shared input validators used by
// repositories and tools: id shape/bounds, date ranges, enum membership,
// and bounded strings. Centralizing these keeps the Validation error
// messages (and field names) consistent across the tool surface.
package validation

import (
	"strings"
	"unicode/utf8"

	cmerrors "github.com/convomem/convomem/pkg/errors"
)

const (
	// MinIDLength and MaxIDLength bound the opaque, UUID-shaped ids used
	// throughout the system. IDs are never parsed, only checked for shape.
	MinIDLength = 8
	MaxIDLength = 128

	// DefaultMaxContentLength is the default cap on Message.content.
	DefaultMaxContentLength = 100_000
)

// NonEmptyID checks that id is a non-empty, length-bounded opaque string.
func NonEmptyID(field, id string) *cmerrors.Error {
	if strings.TrimSpace(id) == "" {
		return cmerrors.Validationf(field, "%s must not be empty", field)
	}
	if utf8.RuneCountInString(id) < MinIDLength || utf8.RuneCountInString(id) > MaxIDLength {
		return cmerrors.Validationf(field, "%s must be between %d and %d characters", field, MinIDLength, MaxIDLength)
	}
	return nil
}

// BoundedString checks that s is non-empty (unless allowEmpty) and no
// longer than maxLen runes.
func BoundedString(field, s string, maxLen int, allowEmpty bool) *cmerrors.Error {
	if !allowEmpty && strings.TrimSpace(s) == "" {
		return cmerrors.Validationf(field, "%s must not be empty", field)
	}
	if utf8.RuneCountInString(s) > maxLen {
		return cmerrors.Validationf(field, "%s must not exceed %d characters", field, maxLen)
	}
	return nil
}

// Enum checks that value is a member of allowed.
func Enum(field, value string, allowed ...string) *cmerrors.Error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return cmerrors.Validationf(field, "%s must be one of %s", field, strings.Join(allowed, ", "))
}

// DateRange checks that start <= end when both are non-zero.
func DateRange(startField, endField string, startMs, endMs int64) *cmerrors.Error {
	if startMs != 0 && endMs != 0 && startMs > endMs {
		return cmerrors.Validationf(startField, "%s must not be after %s", startField, endField)
	}
	return nil
}

// Range checks that value falls within [min, max] inclusive.
func Range(field string, value, min, max float64) *cmerrors.Error {
	if value < min || value > max {
		return cmerrors.Validationf(field, "%s must be between %v and %v", field, min, max)
	}
	return nil
}

// Positive checks that value is strictly greater than zero.
func Positive(field string, value int) *cmerrors.Error {
	if value <= 0 {
		return cmerrors.Validationf(field, "%s must be positive", field)
	}
	return nil
}

// NonNegative checks that value is greater than or equal to zero.
func NonNegative(field string, value int) *cmerrors.Error {
	if value < 0 {
		return cmerrors.Validationf(field, "%s must not be negative", field)
	}
	return nil
}

// PageBounds checks limit/offset are non-negative and limit is within a
// sane ceiling, returning defaults when limit is zero.
func PageBounds(limit, offset int) (int, int, *cmerrors.Error) {
	if offset < 0 {
		return 0, 0, cmerrors.Validationf("offset", "offset must not be negative")
	}
	if limit < 0 {
		return 0, 0, cmerrors.Validationf("limit", "limit must not be negative")
	}
	if limit == 0 {
		limit = 50
	}
	if limit > 1000 {
		return 0, 0, cmerrors.Validationf("limit", "limit must not exceed 1000")
	}
	return limit, offset, nil
}
