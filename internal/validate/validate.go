// Package validate holds the string predicates used at request boundaries.
package validate

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[0-9]{10}$`)
	pinRe   = regexp.MustCompile(`^[0-9]{4}$`)
)

// Email reports whether s looks like an email address.
func Email(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// Phone reports whether s is a 10-digit mobile number.
func Phone(s string) bool {
	return phoneRe.MatchString(s)
}

// PIN reports whether s is a 4-digit PIN.
func PIN(s string) bool {
	return pinRe.MatchString(s)
}

// NormalizePhone strips spaces, dashes and a leading +91 / 0 so that numbers
// typed in the usual local formats compare equal.
func NormalizePhone(s string) string {
	s = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "+91")
	if len(s) == 11 && strings.HasPrefix(s, "0") {
		s = s[1:]
	}
	return s
}
