package store

import (
	"fmt"
	"regexp"
)

var usernameRegexp = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// ValidateUsername checks that name conforms to account naming rules.
func ValidateUsername(name string) error {
	if !usernameRegexp.MatchString(name) {
		return fmt.Errorf("invalid username %q: must match ^[A-Za-z0-9_]{3,30}$", name)
	}
	if name == SystemSender {
		return fmt.Errorf("invalid username %q: reserved", name)
	}
	return nil
}
