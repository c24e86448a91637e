package model

import "strings"

// Caller describes who made a request, on a best-effort basis. It is carried
// into every lifecycle call so audit entries can record where a call came from.
type Caller struct {
	Origin    string // Network origin, usually the remote address.
	ClientID  string // Client identifier, usually the User-Agent.
	RequestID string
}

// Source renders the caller as the audit source string.
func (c Caller) Source() string {
	origin := strings.TrimSpace(c.Origin)
	if origin == "" {
		origin = "unknown"
	}
	client := strings.TrimSpace(c.ClientID)
	if client == "" {
		return origin
	}
	return origin + "; " + client
}
