package content

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxMessageLength  = 4000
	MaxUsernameLength = 32
)

var (
	ErrEmptyMessage   = errors.New("message text is required")
	ErrMessageTooLong = errors.New("message text is too long")

	messagePolicy = bluemonday.UGCPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// SanitizeMessage strips unsafe HTML from a message and validates what is
// left. The returned text is what gets stored.
func SanitizeMessage(text string) (string, error) {
	clean := strings.TrimSpace(messagePolicy.Sanitize(text))
	if clean == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(clean) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return clean, nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and fits the length limit.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return errors.New("username is too long")
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
