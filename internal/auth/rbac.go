package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// AuthorityGraph administers roles, permissions and the links between them.
type AuthorityGraph struct {
	store AuthorityStore
	users UserStore
	log   *zap.Logger
}

func NewAuthorityGraph(store AuthorityStore, users UserStore, log *zap.Logger) (*AuthorityGraph, error) {
	if store == nil || users == nil {
		return nil, errors.New("authority and user stores are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthorityGraph{store: store, users: users, log: log}, nil
}

// PermissionsOf returns the union of the role's permissions.
func (g *AuthorityGraph) PermissionsOf(ctx context.Context, roleID string) (PermissionSet, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return PermissionSet{}, nil
	}
	perms, err := g.store.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(perms), nil
}

func (g *AuthorityGraph) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if strings.ContainsAny(name, " :") {
		return Role{}, fmt.Errorf("%w: role name %q must not contain spaces or colons", ErrInvalidInput, name)
	}
	return g.store.CreateRole(ctx, Role{Name: name, Description: strings.TrimSpace(description)})
}

func (g *AuthorityGraph) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return g.store.GetRole(ctx, roleID)
}

func (g *AuthorityGraph) ListRoles(ctx context.Context) ([]Role, error) {
	return g.store.ListRoles(ctx)
}

// DeleteRole removes a role that no user references. A referenced role is
// rejected with *RoleInUseError.
func (g *AuthorityGraph) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if _, err := g.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	n, err := g.users.CountUsersWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	if n > 0 {
		return &RoleInUseError{RoleID: roleID, Users: n}
	}
	return g.store.DeleteRole(ctx, roleID)
}

func (g *AuthorityGraph) CreatePermission(ctx context.Context, name, description string, rt ResourceType, action Action) (Permission, error) {
	if !rt.Valid() {
		return Permission{}, fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, rt)
	}
	if !action.Valid() {
		return Permission{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = Grant{Resource: rt, Action: action}.String()
	}
	return g.store.CreatePermission(ctx, Permission{
		Name:        name,
		Description: strings.TrimSpace(description),
		Resource:    rt,
		Action:      action,
	})
}

func (g *AuthorityGraph) ListPermissions(ctx context.Context) ([]Permission, error) {
	return g.store.ListPermissions(ctx)
}

// Assign links permissions to a role. Already-present links are no-ops.
func (g *AuthorityGraph) Assign(ctx context.Context, roleID string, permissionIDs []string) error {
	roleID, ids, err := g.linkArgs(ctx, roleID, permissionIDs)
	if err != nil || len(ids) == 0 {
		return err
	}
	for _, id := range ids {
		if _, err := g.store.GetPermission(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: permission %s", ErrNotFound, id)
			}
			return err
		}
	}
	if err := g.store.AttachPermissions(ctx, roleID, ids); err != nil {
		return err
	}
	g.log.Info("permissions assigned", zap.String("role_id", roleID), zap.Strings("permission_ids", ids))
	return nil
}

// Revoke unlinks permissions from a role. Absent links are no-ops.
func (g *AuthorityGraph) Revoke(ctx context.Context, roleID string, permissionIDs []string) error {
	roleID, ids, err := g.linkArgs(ctx, roleID, permissionIDs)
	if err != nil || len(ids) == 0 {
		return err
	}
	if err := g.store.DetachPermissions(ctx, roleID, ids); err != nil {
		return err
	}
	g.log.Info("permissions revoked", zap.String("role_id", roleID), zap.Strings("permission_ids", ids))
	return nil
}

// DeletePermission detaches the permission from every role, then removes it,
// so no role is ever left pointing at a missing permission.
func (g *AuthorityGraph) DeletePermission(ctx context.Context, permissionID string) error {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	if err := g.store.PurgePermission(ctx, permissionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("purge permission: %w", err)
	}
	return nil
}

func (g *AuthorityGraph) linkArgs(ctx context.Context, roleID string, permissionIDs []string) (string, []string, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return "", nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if _, err := g.store.GetRole(ctx, roleID); err != nil {
		return "", nil, err
	}
	return roleID, dedupeStrings(permissionIDs), nil
}

// Users administers accounts and their single role reference.
type Users struct {
	store UserStore
	roles AuthorityStore
}

func NewUsers(store UserStore, roles AuthorityStore) (*Users, error) {
	if store == nil || roles == nil {
		return nil, errors.New("user and authority stores are required")
	}
	return &Users{store: store, roles: roles}, nil
}

// Register creates an active account bound to roleID.
func (u *Users) Register(ctx context.Context, username, password, roleID string) (User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return User{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if _, err := u.roles.GetRole(ctx, roleID); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return u.store.CreateUser(ctx, User{
		Username:     username,
		PasswordHash: hash,
		RoleID:       roleID,
		Active:       true,
	})
}

func (u *Users) Get(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return u.store.GetUser(ctx, userID)
}

func (u *Users) List(ctx context.Context) ([]User, error) {
	return u.store.ListUsers(ctx)
}

// ChangeRole rebinds the user's role. Already-issued tokens keep the old
// permission snapshot until they expire.
func (u *Users) ChangeRole(ctx context.Context, userID, roleID string) (User, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return User{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if _, err := u.roles.GetRole(ctx, roleID); err != nil {
		return User{}, err
	}
	return u.store.SetUserRole(ctx, userID, roleID)
}

func (u *Users) SetStatus(ctx context.Context, userID string, status UserStatus) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if status.Active == nil && status.Blocked == nil {
		return u.store.GetUser(ctx, userID)
	}
	return u.store.SetUserStatus(ctx, userID, status)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
