package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tenantPattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	studentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
)

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateStudentID accepts school MIS style identifiers. The error never
// echoes the id.
func ValidateStudentID(id string) error {
	if id == "" {
		return fmt.Errorf("student ID cannot be empty")
	}
	if !studentIDPattern.MatchString(id) {
		return fmt.Errorf("invalid student ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 500 {
		return 500
	}
	return limit
}
