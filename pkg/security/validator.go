package security

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxIdentifierLength bounds queue, entry and user ids accepted from callers
	MaxIdentifierLength = 128
	// MaxDisplayNameLength bounds names shown to other users
	MaxDisplayNameLength = 100
)

var (
	ErrEmptyIdentifier    = errors.New("identifier is required")
	ErrIdentifierTooLong  = errors.New("identifier too long")
	ErrInvalidIdentifier  = errors.New("identifier contains invalid characters")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrInvalidDisplayName = errors.New("display name contains invalid characters")
)

// dangerousPatterns flags text that looks like an injection attempt when it
// is later rendered on an operator screen or echoed into a query log
var dangerousPatterns = []*regexp.Regexp{
	// SQL injection patterns
	regexp.MustCompile(`(?i)\b(union\s+select|select\s+.+\s+from|insert\s+into|delete\s+from|drop\s+table|alter\s+table|exec(ute)?\s*\()`),
	regexp.MustCompile(`(?i)\b(or|and)\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(?i)\b(or|and)\s+['"].*['"]\s*=\s*['"].*['"]`),
	regexp.MustCompile(`(--|/\*|\*/|;)`),
	regexp.MustCompile(`(?i)(waitfor\s+delay|benchmark\s*\(|sleep\s*\()`),

	// XSS patterns
	regexp.MustCompile(`(?i)(<script|</script|javascript:|vbscript:|onload=|onerror=)`),
}

// ValidateIdentifier checks an opaque id such as a queue id or a user id
// handed over by the upstream identity provider.
func ValidateIdentifier(id string) error {
	if id == "" {
		return ErrEmptyIdentifier
	}
	if len(id) > MaxIdentifierLength {
		return ErrIdentifierTooLong
	}
	for _, char := range id {
		if !isValidIdentifierChar(char) {
			return ErrInvalidIdentifier
		}
	}
	return nil
}

func isValidIdentifierChar(char rune) bool {
	return (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') ||
		char == '-' || char == '_' || char == '.' || char == ':' || char == '@'
}

// SanitizeDisplayName trims name and rejects control characters and
// injection-looking payloads. An empty result is allowed.
func SanitizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}

	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", ErrDisplayNameTooLong
	}

	for _, char := range name {
		if unicode.IsControl(char) || char == '<' || char == '>' {
			return "", ErrInvalidDisplayName
		}
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(name) {
			return "", ErrInvalidDisplayName
		}
	}

	return name, nil
}
