package twitch

import (
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-scribe/platform"
)

// badgeRoles maps chat badges to the role names checked by the permission allow-list.
var badgeRoles = map[string]string{
	"broadcaster": "broadcaster",
	"moderator":   "moderator",
	"vip":         "vip",
}

func authorOf(u twitch.User) platform.Author {
	a := platform.Author{ID: u.ID, DisplayName: u.DisplayName, Handle: u.Name}
	if a.DisplayName == "" {
		a.DisplayName = u.Name
	}
	for badge := range u.Badges {
		if role, ok := badgeRoles[badge]; ok {
			a.Roles = append(a.Roles, role)
		}
	}
	return a
}

// ParseCommand recognises "!name key=value ..." lines. Values may be double-quoted to
// include spaces. For "!say" the remainder of the line becomes the "message" option.
func ParseCommand(line string) (string, map[string]string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, CommandPrefix) {
		return "", nil, false
	}
	body := strings.TrimPrefix(line, CommandPrefix)
	name, rest, _ := strings.Cut(body, " ")
	name = strings.ToLower(name)
	switch name {
	case "record", "stop":
	case "say":
		return name, map[string]string{"message": strings.TrimSpace(rest)}, true
	default:
		return "", nil, false
	}
	opts := map[string]string{}
	for _, tok := range tokenize(rest) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		opts[strings.ToLower(k)] = v
	}
	return name, opts, true
}

// tokenize splits on spaces outside double quotes and strips the quotes.
func tokenize(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '"':
			quote = !quote
		case r == ' ' && !quote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// Flatten joins multi-line text into one IRC line.
func Flatten(text string) string {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, " | ")
}
