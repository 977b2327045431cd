package api

import (
	"regexp"
	"strings"
)

type (
	// SessionID is a unique identifier for a conversation session. A session
	// is the unit of exclusive execution ownership
	SessionID string

	// NodeID is a unique identifier for a node in a flow graph
	NodeID string

	// Name is a string identifier for state fields
	Name string
)

// InvalidIDChars matches characters not permitted in session and node IDs.
// Valid characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

// SanitizeID lowercases an ID, removes invalid characters, replaces spaces
// with hyphens, and trims leading and trailing hyphens
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return T(strings.Trim(sanitized, "-"))
}
