package auth

import "context"

// UserStore manages user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserRole(ctx context.Context, userID, roleID string) (User, error)
	SetUserStatus(ctx context.Context, userID string, status UserStatus) (User, error)
	CountUsersWithRole(ctx context.Context, roleID string) (int, error)
}

// AuthorityStore persists the role → permission graph.
type AuthorityStore interface {
	CreateRole(ctx context.Context, role Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRole(ctx context.Context, id string) error

	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	DeletePermission(ctx context.Context, id string) error

	// AttachPermissions links permissions to a role, skipping links that exist.
	AttachPermissions(ctx context.Context, roleID string, permissionIDs []string) error
	// DetachPermissions unlinks permissions from a role, ignoring absent links.
	DetachPermissions(ctx context.Context, roleID string, permissionIDs []string) error
	// PurgePermission unlinks a permission from every role and deletes it as
	// one atomic step.
	PurgePermission(ctx context.Context, permissionID string) error
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)
}

// OwnershipStore persists (resource type, instance id, user id) triples.
type OwnershipStore interface {
	AddOwner(ctx context.Context, rt ResourceType, resourceID, userID string) error
	RemoveOwner(ctx context.Context, rt ResourceType, resourceID, userID string) error
	RemoveResource(ctx context.Context, rt ResourceType, resourceID string) error
	IsOwner(ctx context.Context, rt ResourceType, resourceID, userID string) (bool, error)
	Owners(ctx context.Context, rt ResourceType, resourceID string) ([]string, error)
	OwnedBy(ctx context.Context, rt ResourceType, userID string) ([]string, error)
}
