// Package session carries the caller's authentication context.
//
// The conversion client never reads ambient state; callers pass a Session
// explicitly.
package session

import "strings"

// Session is an opaque bearer token plus the display name it belongs to.
type Session struct {
	Token    string `json:"-"`
	Username string `json:"username,omitempty"`
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.Token) != ""
}

// AuthorizationHeader returns the header value, or "" when unauthenticated.
func (s Session) AuthorizationHeader() string {
	if !s.Authenticated() {
		return ""
	}
	return "Bearer " + strings.TrimSpace(s.Token)
}

// MaskedToken returns the token with all but the last four characters hidden.
func (s Session) MaskedToken() string {
	tok := strings.TrimSpace(s.Token)
	if len(tok) <= 4 {
		return strings.Repeat("*", len(tok))
	}
	return strings.Repeat("*", len(tok)-4) + tok[len(tok)-4:]
}
