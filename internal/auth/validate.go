package auth

import "strings"

// Limits imposed by the credential store schema and bcrypt.
const (
	maxUsernameBytes = 64
	maxEmailBytes    = 254
	minPasswordLen   = 8
	maxPasswordLen   = 72
)

// reserved characters cannot appear in names because older clients do not
// escape parameters.
const reserved = ",()\\$"

func hasControl(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0
}

// ValidUsername reports whether username may be registered.
func ValidUsername(username string) bool {
	return username != "" &&
		len(username) <= maxUsernameBytes &&
		strings.TrimSpace(username) == username &&
		!strings.ContainsAny(username, reserved) &&
		!hasControl(username)
}

// ValidPassword requires at least eight characters drawn only from A-Z, a-z
// and 0-9, with at least one of each.
func ValidPassword(password string) bool {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return false
	}
	var upper, lower, digit bool
	for _, c := range password {
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		default:
			return false
		}
	}
	return upper && lower && digit
}

// ValidEmail is a shape check only: longer than three characters and
// containing '@'.
func ValidEmail(email string) bool {
	return len(email) > 3 &&
		len(email) <= maxEmailBytes &&
		strings.Contains(email, "@") &&
		!strings.ContainsAny(email, reserved) &&
		!hasControl(email)
}
