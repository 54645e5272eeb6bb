package roles

import "strings"

type Role string

const (
	Unknown Role = ""
	Tester  Role = "tester"
	Manager Role = "manager"
	Admin   Role = "admin"
)

// Parse maps a wire role string onto the closed role set. Anything
// unrecognized degrades to Unknown rather than failing.
func Parse(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tester", "employee":
		return Tester
	case "manager":
		return Manager
	case "admin", "administrator":
		return Admin
	default:
		return Unknown
	}
}

func (r Role) Display() string {
	switch r {
	case Tester:
		return "Tester"
	case Manager:
		return "Manager"
	case Admin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// Link is one console navigation entry.
type Link struct {
	Label string
	Path  string
}

// Per-role link sets are plain enumerated configuration, not a hierarchy.
var linksByRole = map[Role][]Link{
	Tester: {
		{Label: "Dashboard", Path: "/dashboard"},
		{Label: "My Environments", Path: "/environments"},
		{Label: "Chat", Path: "/chat"},
	},
	Manager: {
		{Label: "Dashboard", Path: "/dashboard"},
		{Label: "Projects", Path: "/projects"},
		{Label: "Team", Path: "/team"},
		{Label: "Chat", Path: "/chat"},
	},
	Admin: {
		{Label: "Dashboard", Path: "/dashboard"},
		{Label: "Projects", Path: "/projects"},
		{Label: "Users", Path: "/users"},
		{Label: "Environments", Path: "/environments"},
		{Label: "Chat", Path: "/chat"},
	},
}

// LinksFor returns the navigation set for a role. Unknown roles get no links.
func LinksFor(r Role) []Link {
	src, ok := linksByRole[r]
	if !ok {
		return nil
	}
	out := make([]Link, len(src))
	copy(out, src)
	return out
}
