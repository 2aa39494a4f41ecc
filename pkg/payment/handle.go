package payment

import (
	"regexp"
	"strings"
)

var handleRe = regexp.MustCompile(`^[A-Za-z0-9_]{5,32}$`)

// NormalizeHandle strips a leading @ and validates the telegram username
// format: 5-32 characters of [A-Za-z0-9_].
func NormalizeHandle(raw string) (string, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if !handleRe.MatchString(handle) {
		return "", ErrInvalidHandle
	}
	return handle, nil
}
