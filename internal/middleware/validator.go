package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

var projectName = regexp.MustCompile(`^[\pL\pN ._-]{1,255}$`)

// ValidateProjectName accepts letters, digits, space, dot, dash and
// underscore, at most 255 characters
func ValidateProjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if !projectName.MatchString(name) {
		return fmt.Errorf("invalid project name %q", name)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ValidatePage defaults pages below one to the first
func ValidatePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
