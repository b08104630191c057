package auth

import (
	"context"
	"fmt"
)

const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleViewer  = "VIEWER"
)

var inventoryResources = []ResourceType{
	ResourceLocation,
	ResourceProject,
	ResourceRack,
	ResourceBaremetal,
	ResourceNetworkDevice,
	ResourceVirtualization,
	ResourceVM,
}

// BuiltinRoleGrants describes the default roles seeded into an empty store.
var BuiltinRoleGrants = map[string][]Grant{
	RoleAdmin:   allGrants(ResourceTypes, Actions...),
	RoleManager: append(allGrants(inventoryResources, Actions...), allGrants([]ResourceType{ResourceUser}, ActionRead)...),
	RoleViewer:  allGrants(inventoryResources, ActionRead),
}

// Catalogue lists one permission per (ResourceType, Action) pair.
func Catalogue() []Permission {
	perms := make([]Permission, 0, len(ResourceTypes)*len(Actions))
	for _, g := range allGrants(ResourceTypes, Actions...) {
		perms = append(perms, Permission{
			Name:        g.String(),
			Description: fmt.Sprintf("%s %s", g.Action, g.Resource),
			Resource:    g.Resource,
			Action:      g.Action,
		})
	}
	return perms
}

// SeedDefaults populates an empty authority graph with the catalogue and the
// builtin roles. It returns the created roles keyed by name.
func SeedDefaults(ctx context.Context, graph *AuthorityGraph) (map[string]Role, error) {
	byGrant := make(map[Grant]string)
	for _, p := range Catalogue() {
		created, err := graph.CreatePermission(ctx, p.Name, p.Description, p.Resource, p.Action)
		if err != nil {
			return nil, fmt.Errorf("seed permission %s: %w", p.Name, err)
		}
		byGrant[created.Grant()] = created.ID
	}
	roles := make(map[string]Role, len(BuiltinRoleGrants))
	for _, name := range []string{RoleAdmin, RoleManager, RoleViewer} {
		role, err := graph.CreateRole(ctx, name, "builtin "+name+" role")
		if err != nil {
			return nil, fmt.Errorf("seed role %s: %w", name, err)
		}
		ids := make([]string, 0, len(BuiltinRoleGrants[name]))
		for _, g := range BuiltinRoleGrants[name] {
			ids = append(ids, byGrant[g])
		}
		if err := graph.Assign(ctx, role.ID, ids); err != nil {
			return nil, fmt.Errorf("seed role %s: %w", name, err)
		}
		roles[name] = role
	}
	return roles, nil
}

// BootstrapAdmin registers username under the builtin ADMIN role so a fresh
// deployment has an account that can manage the rest.
func BootstrapAdmin(ctx context.Context, graph *AuthorityGraph, users *Users, username, password string) (User, error) {
	roles, err := graph.ListRoles(ctx)
	if err != nil {
		return User{}, err
	}
	for _, r := range roles {
		if r.Name == RoleAdmin {
			return users.Register(ctx, username, password, r.ID)
		}
	}
	return User{}, fmt.Errorf("%w: role %s", ErrNotFound, RoleAdmin)
}

func allGrants(resources []ResourceType, actions ...Action) []Grant {
	out := make([]Grant, 0, len(resources)*len(actions))
	for _, rt := range resources {
		for _, a := range actions {
			out = append(out, Grant{Resource: rt, Action: a})
		}
	}
	return out
}
