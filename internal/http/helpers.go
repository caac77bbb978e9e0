package http

import (
	"strings"

	"txdash/internal/dashboard"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// inputName is the form control that carries a filter field's value.
func inputName(field dashboard.Field) string {
	switch field {
	case dashboard.FieldSearch:
		return "s_query"
	case dashboard.FieldMonth:
		return "month"
	default:
		return "value"
	}
}
