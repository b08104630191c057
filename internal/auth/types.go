package auth

import (
	"fmt"
	"strings"
	"time"
)

// ResourceType is a manageable entity kind.
type ResourceType string

const (
	ResourceLocation       ResourceType = "LOCATION"
	ResourceProject        ResourceType = "PROJECT"
	ResourceRack           ResourceType = "RACK"
	ResourceBaremetal      ResourceType = "BAREMETAL"
	ResourceNetworkDevice  ResourceType = "NETWORKDEVICE"
	ResourceVirtualization ResourceType = "VIRTUALIZATION"
	ResourceVM             ResourceType = "VM"
	ResourceUser           ResourceType = "USER"
	ResourceRole           ResourceType = "ROLE"
	ResourcePermission     ResourceType = "PERMISSION"
)

// ResourceTypes lists every ResourceType in declaration order.
var ResourceTypes = []ResourceType{
	ResourceLocation,
	ResourceProject,
	ResourceRack,
	ResourceBaremetal,
	ResourceNetworkDevice,
	ResourceVirtualization,
	ResourceVM,
	ResourceUser,
	ResourceRole,
	ResourcePermission,
}

// Valid reports whether rt is one of the known resource types.
func (rt ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if rt == known {
			return true
		}
	}
	return false
}

// ParseResourceType normalizes and validates a resource type literal.
func ParseResourceType(raw string) (ResourceType, error) {
	rt := ResourceType(strings.ToUpper(strings.TrimSpace(raw)))
	if !rt.Valid() {
		return "", fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, raw)
	}
	return rt, nil
}

// Action is an operation kind.
type Action string

const (
	ActionRead   Action = "READ"
	ActionWrite  Action = "WRITE"
	ActionEdit   Action = "EDIT"
	ActionDelete Action = "DELETE"
)

// Actions lists every Action.
var Actions = []Action{ActionRead, ActionWrite, ActionEdit, ActionDelete}

func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// ParseAction normalizes and validates an action literal.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(raw)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, raw)
	}
	return a, nil
}

// Grant is a (ResourceType, Action) pair.
type Grant struct {
	Resource ResourceType
	Action   Action
}

// String renders the grant as an authority string, e.g. "LOCATION:READ".
func (g Grant) String() string {
	return string(g.Resource) + ":" + string(g.Action)
}

// ParseGrant parses an authority string produced by Grant.String.
func ParseGrant(raw string) (Grant, error) {
	resource, action, ok := strings.Cut(raw, ":")
	if !ok {
		return Grant{}, fmt.Errorf("%w: malformed authority %q", ErrInvalidInput, raw)
	}
	rt, err := ParseResourceType(resource)
	if err != nil {
		return Grant{}, err
	}
	a, err := ParseAction(action)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Resource: rt, Action: a}, nil
}

// User is an account able to authenticate.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	RoleID       string    `json:"role_id,omitempty"`
	Active       bool      `json:"active"`
	Blocked      bool      `json:"blocked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Enabled reports whether the account may log in.
func (u User) Enabled() bool {
	return u.Active && !u.Blocked
}

// Role groups permissions. Every user references at most one role.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission tags a (ResourceType, Action) pair with a human name.
type Permission struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Resource    ResourceType `json:"resource_type"`
	Action      Action       `json:"action"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Grant returns the pair the permission stands for.
func (p Permission) Grant() Grant {
	return Grant{Resource: p.Resource, Action: p.Action}
}

// UserStatus is a partial update of the account flags.
type UserStatus struct {
	Active  *bool
	Blocked *bool
}
