package debipa

import (
	"net/url"
	"strings"
)

// mask replaces the input string with the same number of `X` characters.
func mask(s string) string {
	return strings.Repeat("X", len(s))
}

// MaskURL masks the password of URLs with user info, so they can be
// logged.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if pass, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), mask(pass))
	}

	return u.String()
}
