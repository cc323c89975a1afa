package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Password policy bounds. The minimum is the product floor; the maximum only
// exists to bound KDF cost on hostile input.
const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// ValidatePassword applies the password policy used by registration and
// password reset. The hasher itself accepts anything, including the empty
// string; this is the only place complexity rules live.
func ValidatePassword(plain string) error {
	n := utf8.RuneCountInString(plain)
	if n < minPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, minPasswordLength)
	}
	if n > maxPasswordLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrPasswordPolicy, maxPasswordLength)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("%w: must contain an uppercase letter", ErrPasswordPolicy)
	case !hasLower:
		return fmt.Errorf("%w: must contain a lowercase letter", ErrPasswordPolicy)
	case !hasDigit:
		return fmt.Errorf("%w: must contain a digit", ErrPasswordPolicy)
	case !hasSymbol:
		return fmt.Errorf("%w: must contain a symbol", ErrPasswordPolicy)
	}
	return nil
}
