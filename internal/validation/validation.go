package validation

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmailRequired  = errors.New("email address is required")
	ErrEmailTooLong   = errors.New("email address is too long (max 254 characters)")
	ErrEmailInvalid   = errors.New("invalid email address format")
	ErrPasswordShort  = errors.New("password must be at least 12 characters")
	ErrPasswordLong   = errors.New("password must not exceed 128 characters")
	ErrPasswordCommon = errors.New("password is too common, please choose a stronger one")
)

// ValidateEmail checks length limits and RFC 5322 syntax. Display names
// ("Ada <ada@example.com>") are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > 254 {
		return ErrEmailTooLong
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid
	}
	return nil
}

// ValidateName checks a required free-text field such as a person's or an
// organization's name.
func ValidateName(field, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return errors.New(field + " is required")
	}
	if utf8.RuneCountInString(trimmed) > 100 {
		return errors.New(field + " is too long (max 100 characters)")
	}
	return nil
}

var commonPasswordPatterns = []string{
	"password", "123456", "qwerty", "admin", "letmein",
	"welcome", "monkey", "dragon", "master", "sunshine",
}

// ValidatePassword applies the signup strength rules before the password
// leaves the console.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < 12 {
		return ErrPasswordShort
	}
	if n > 128 {
		return ErrPasswordLong
	}
	lower := strings.ToLower(password)
	for _, pattern := range commonPasswordPatterns {
		if strings.Contains(lower, pattern) {
			return ErrPasswordCommon
		}
	}
	return nil
}
