package common

import "strings"

// WipeByteArray zeroes b in place. Used for passwords read from the terminal.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// BearerToken extracts the token from an Authorization header value.
// It returns "" when the header is not a bearer credential.
func BearerToken(header string) string {
	if len(header) < len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(BearerPrefix):])
}
