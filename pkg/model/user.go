package model

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameInvalidChars = errors.New("username must be valid UTF-8 without whitespace, control characters or commas")

// ValidateUsername accepts any non-empty UTF-8 token that cannot break the
// wire format: no whitespace or control characters (command fields and line
// ends) and no commas (USERS list separator).
func ValidateUsername(name string) error {
	if name == "" {
		return ErrUsernameEmpty
	}
	if !utf8.ValidString(name) || strings.ContainsRune(name, ',') {
		return ErrUsernameInvalidChars
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}
