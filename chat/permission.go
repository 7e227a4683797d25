package chat

import (
	"slices"
	"strings"

	"github.com/onnwee/chat-scribe/platform"
)

// Permission is a role allow-list predicate.
type Permission struct {
	Roles []string
}

// Allows reports whether the author holds at least one allowed role. Direct messages never pass.
func (p Permission) Allows(a platform.Author) bool {
	if a.Direct {
		return false
	}
	for _, r := range a.Roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// Denial is the reply sent to an author that Allows rejected.
func (p Permission) Denial(a platform.Author) string {
	if a.Direct {
		return "Commands can only be used in a server channel."
	}
	quoted := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		quoted[i] = "**" + r + "**"
	}
	return "Sorry, you need one of these roles to use this command: " + strings.Join(quoted, ", ")
}
