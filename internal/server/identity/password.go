package identity

import (
	"unicode"
	"unicode/utf8"

	"github.com/QKhanh04/innerg-api/internal/common"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// ValidatePassword applies the password policy and returns a Validation
// error listing every rule the password breaks.
func ValidatePassword(password string) error {
	var problems []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		problems = append(problems, "Passwords must be at least 6 characters.")
	}

	var digit, lower, upper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	if !digit {
		problems = append(problems, "Passwords must have at least one digit ('0'-'9').")
	}
	if !lower {
		problems = append(problems, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if !upper {
		problems = append(problems, "Passwords must have at least one uppercase ('A'-'Z').")
	}

	if len(problems) > 0 {
		return common.Validation(map[string][]string{"password": problems})
	}
	return nil
}
