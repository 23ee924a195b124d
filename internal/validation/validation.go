package validation

import (
	"errors"
	"strings"
	"unicode"
)

// DefaultMaxCityLength bounds city names accepted from invocation events.
const DefaultMaxCityLength = 100

// ErrCityEmpty is returned when the city name is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when the city name exceeds the maximum length.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when the city name contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ValidateCity trims the input and enforces a maximum length in runes (maxLen <= 0 disables it).
// Control characters and path separators are rejected because the name becomes part of blob keys.
// Returns the trimmed name.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsControl(r) {
		return false
	}
	switch r {
	case '/', '\\':
		return false
	}
	return unicode.IsPrint(r)
}
