// Package memory keeps users, the authority graph and the ownership index in
// process memory. It backs tests and single-node development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/ids"
)

var (
	_ auth.UserStore      = (*Store)(nil)
	_ auth.AuthorityStore = (*Store)(nil)
	_ auth.OwnershipStore = (*Store)(nil)
)

type ownerKey struct {
	rt auth.ResourceType
	id string
}

// Store implements every auth store with in-process concurrency safety.
type Store struct {
	mu        sync.RWMutex
	users     map[string]auth.User
	usernames map[string]string
	roles     map[string]auth.Role
	roleNames map[string]string
	perms     map[string]auth.Permission
	rolePerms map[string]map[string]struct{}
	owners    map[ownerKey]map[string]struct{}
	now       func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:     make(map[string]auth.User),
		usernames: make(map[string]string),
		roles:     make(map[string]auth.Role),
		roleNames: make(map[string]string),
		perms:     make(map[string]auth.Permission),
		rolePerms: make(map[string]map[string]struct{}),
		owners:    make(map[ownerKey]map[string]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Users ---------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.usernames[u.Username]; taken {
		return auth.User{}, auth.ErrConflict
	}
	if u.RoleID != "" {
		if _, ok := s.roles[u.RoleID]; !ok {
			return auth.User{}, auth.ErrNotFound
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	s.usernames[u.Username] = u.ID
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) SetUserRole(ctx context.Context, userID, roleID string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.User{}, auth.ErrNotFound
	}
	u.RoleID = roleID
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return u, nil
}

func (s *Store) SetUserStatus(ctx context.Context, userID string, status auth.UserStatus) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if status.Active != nil {
		u.Active = *status.Active
	}
	if status.Blocked != nil {
		u.Blocked = *status.Blocked
	}
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return u, nil
}

func (s *Store) CountUsersWithRole(ctx context.Context, roleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

// Authority graph -----------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, role auth.Role) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.roleNames[role.Name]; taken {
		return auth.Role{}, auth.ErrConflict
	}
	role.ID = ids.New()
	now := s.now()
	role.CreatedAt, role.UpdatedAt = now, now
	s.roles[role.ID] = role
	s.roleNames[role.Name] = role.ID
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return auth.ErrNotFound
	}
	for _, u := range s.users {
		if u.RoleID == id {
			return auth.ErrConflict
		}
	}
	delete(s.roles, id)
	delete(s.roleNames, r.Name)
	delete(s.rolePerms, id)
	return nil
}

func (s *Store) CreatePermission(ctx context.Context, p auth.Permission) (auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.perms {
		if existing.Name == p.Name {
			return auth.Permission{}, auth.ErrConflict
		}
	}
	p.ID = ids.New()
	p.CreatedAt = s.now()
	s.perms[p.ID] = p
	return p, nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perms[id]
	if !ok {
		return auth.Permission{}, auth.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	return sortByName(out), nil
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return auth.ErrNotFound
	}
	for _, linked := range s.rolePerms {
		if _, ok := linked[id]; ok {
			return auth.ErrConflict
		}
	}
	delete(s.perms, id)
	return nil
}

func (s *Store) AttachPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	for _, id := range permissionIDs {
		if _, ok := s.perms[id]; !ok {
			return auth.ErrNotFound
		}
	}
	linked := s.rolePerms[roleID]
	if linked == nil {
		linked = make(map[string]struct{}, len(permissionIDs))
		s.rolePerms[roleID] = linked
	}
	for _, id := range permissionIDs {
		linked[id] = struct{}{}
	}
	return nil
}

func (s *Store) DetachPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	for _, id := range permissionIDs {
		delete(s.rolePerms[roleID], id)
	}
	return nil
}

func (s *Store) PurgePermission(ctx context.Context, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[permissionID]; !ok {
		return auth.ErrNotFound
	}
	for _, linked := range s.rolePerms {
		delete(linked, permissionID)
	}
	delete(s.perms, permissionID)
	return nil
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, auth.ErrNotFound
	}
	// A role without links has no permissions.
	linked := s.rolePerms[roleID]
	out := make([]auth.Permission, 0, len(linked))
	for id := range linked {
		if p, ok := s.perms[id]; ok {
			out = append(out, p)
		}
	}
	return sortByName(out), nil
}

func sortByName(perms []auth.Permission) []auth.Permission {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms
}

// Ownership index -------------------------------------------------------------

func (s *Store) AddOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ownerKey{rt: rt, id: resourceID}
	set := s.owners[k]
	if set == nil {
		set = make(map[string]struct{})
		s.owners[k] = set
	}
	set[userID] = struct{}{}
	return nil
}

func (s *Store) RemoveOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ownerKey{rt: rt, id: resourceID}
	delete(s.owners[k], userID)
	if len(s.owners[k]) == 0 {
		delete(s.owners, k)
	}
	return nil
}

func (s *Store) RemoveResource(ctx context.Context, rt auth.ResourceType, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, ownerKey{rt: rt, id: resourceID})
	return nil
}

func (s *Store) IsOwner(ctx context.Context, rt auth.ResourceType, resourceID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.owners[ownerKey{rt: rt, id: resourceID}][userID]
	return ok, nil
}

func (s *Store) Owners(ctx context.Context, rt auth.ResourceType, resourceID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.owners[ownerKey{rt: rt, id: resourceID}]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) OwnedBy(ctx context.Context, rt auth.ResourceType, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k, set := range s.owners {
		if k.rt != rt {
			continue
		}
		if _, ok := set[userID]; ok {
			out = append(out, k.id)
		}
	}
	sort.Strings(out)
	return out, nil
}
