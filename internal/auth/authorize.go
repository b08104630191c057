package auth

import (
	"sort"
	"strings"
)

// PermissionSet is a deduplicated set of grants.
type PermissionSet map[Grant]struct{}

// NewPermissionSet builds a set from permissions; duplicates collapse.
func NewPermissionSet(perms []Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p.Grant()] = struct{}{}
	}
	return set
}

// Has reports whether the set contains g.
func (s PermissionSet) Has(g Grant) bool {
	_, ok := s[g]
	return ok
}

// Authorities renders the set as sorted authority strings.
func (s PermissionSet) Authorities() []string {
	out := make([]string, 0, len(s))
	for g := range s {
		out = append(out, g.String())
	}
	sort.Strings(out)
	return out
}

// Principal is the authenticated identity of a request. Permissions are a
// snapshot taken at login and carried inside the session token.
type Principal struct {
	UserID      string
	Username    string
	Role        string
	Permissions PermissionSet
}

// HasPermission reports whether the principal's role grants action on rt.
func (p Principal) HasPermission(rt ResourceType, action Action) bool {
	return p.Permissions.Has(Grant{Resource: rt, Action: action})
}

const rolePrefix = "ROLE_"

// authorities is the serialized `roles` claim: the role marker followed by
// the granted pairs.
func (p Principal) authorities() []string {
	out := make([]string, 0, len(p.Permissions)+1)
	if p.Role != "" {
		out = append(out, rolePrefix+p.Role)
	}
	return append(out, p.Permissions.Authorities()...)
}

func principalFromAuthorities(userID, username string, authorities []string) (Principal, error) {
	p := Principal{
		UserID:      userID,
		Username:    username,
		Permissions: make(PermissionSet, len(authorities)),
	}
	for _, raw := range authorities {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if role, ok := strings.CutPrefix(raw, rolePrefix); ok {
			p.Role = role
			continue
		}
		g, err := ParseGrant(raw)
		if err != nil {
			return Principal{}, err
		}
		p.Permissions[g] = struct{}{}
	}
	return p, nil
}
