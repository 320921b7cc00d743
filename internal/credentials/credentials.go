package credentials

import (
	"net/url"
	"regexp"
	"strings"

	"captionjoin/internal/fault"
)

var (
	sessionIDRE   = regexp.MustCompile(`^[A-Za-z0-9]{4}-\d{4}$`)
	nonAlphaNumRE = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// Credentials identify one remote presentation. The zero value is "logged out".
type Credentials struct {
	SessionID string `json:"session_id"`
	Passcode  string `json:"-"`
}

// Complete reports whether both fields are present.
func (c Credentials) Complete() bool {
	return c.SessionID != "" && c.Passcode != ""
}

// ValidSessionID reports whether s has the XXXX-0000 shape.
func ValidSessionID(s string) bool {
	return sessionIDRE.MatchString(s)
}

// FormatSessionID strips separators and, when exactly eight characters
// remain, inserts the hyphen after the fourth. Other inputs come back as-is.
func FormatSessionID(in string) string {
	cleaned := nonAlphaNumRE.ReplaceAllString(in, "")
	if len(cleaned) == 8 {
		return cleaned[:4] + "-" + cleaned[4:]
	}
	return in
}

// New validates operator input and returns immutable credentials.
func New(sessionID, passcode string) (Credentials, error) {
	id := FormatSessionID(strings.TrimSpace(sessionID))
	passcode = strings.TrimSpace(passcode)
	if !ValidSessionID(id) {
		return Credentials{}, fault.Validationf("Invalid Session ID format. Use XXXX-0000 format.")
	}
	if passcode == "" {
		return Credentials{}, fault.Validationf("Please enter a passcode.")
	}
	return Credentials{SessionID: id, Passcode: passcode}, nil
}

// ParseWeblink extracts the session id (last path segment) and passcode
// (`key` query parameter) from a shared presentation link. A missing or
// malformed id yields an empty SessionID.
func ParseWeblink(link string) (sessionID, passcode string) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ""
	}
	passcode = u.Query().Get("key")
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return "", passcode
	}
	last := parts[len(parts)-1]
	switch {
	case ValidSessionID(last):
		sessionID = last
	case len(last) == 8:
		if formatted := FormatSessionID(last); ValidSessionID(formatted) {
			sessionID = formatted
		}
	}
	return sessionID, passcode
}

// FromWeblink parses link and validates the result.
func FromWeblink(link string) (Credentials, error) {
	id, pass := ParseWeblink(link)
	if id == "" {
		return Credentials{}, fault.Validationf("Could not extract session information from weblink")
	}
	if pass == "" {
		return Credentials{}, fault.Validationf("Weblink is missing the passcode (key parameter)")
	}
	return New(id, pass)
}
