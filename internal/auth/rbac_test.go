package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

func TestSeedDefaultsBuiltinRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.graph.PermissionsOf(ctx, f.roles[auth.RoleAdmin].ID)
	if err != nil {
		t.Fatalf("PermissionsOf: %v", err)
	}
	if want := len(auth.ResourceTypes) * len(auth.Actions); len(admin) != want {
		t.Fatalf("admin has %d permissions, want %d", len(admin), want)
	}
	viewer, err := f.graph.PermissionsOf(ctx, f.roles[auth.RoleViewer].ID)
	if err != nil {
		t.Fatalf("PermissionsOf: %v", err)
	}
	for g := range viewer {
		if g.Action != auth.ActionRead {
			t.Fatalf("viewer holds non-read grant %s", g)
		}
	}
	empty, err := f.graph.PermissionsOf(ctx, "")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty set for no role, got %v %v", empty, err)
	}
}

func TestAssignAndRevokeAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	role, err := f.graph.CreateRole(ctx, "auditor", "read-only audits")
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.Name != "AUDITOR" {
		t.Fatalf("role name not normalized: %q", role.Name)
	}
	perm, err := f.graph.CreatePermission(ctx, "", "", auth.ResourceVM, auth.ActionRead)
	if err == nil {
		t.Fatal("expected conflict with seeded VM:READ permission")
	}
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	perm, err = f.graph.CreatePermission(ctx, "vm-audit", "audit vms", auth.ResourceVM, auth.ActionRead)
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.graph.Assign(ctx, role.ID, []string{perm.ID, perm.ID}); err != nil {
			t.Fatalf("Assign #%d: %v", i, err)
		}
	}
	set, err := f.graph.PermissionsOf(ctx, role.ID)
	if err != nil {
		t.Fatalf("PermissionsOf: %v", err)
	}
	if len(set) != 1 || !set.Has(auth.Grant{Resource: auth.ResourceVM, Action: auth.ActionRead}) {
		t.Fatalf("unexpected set: %v", set.Authorities())
	}

	for i := 0; i < 2; i++ {
		if err := f.graph.Revoke(ctx, role.ID, []string{perm.ID}); err != nil {
			t.Fatalf("Revoke #%d: %v", i, err)
		}
	}
	set, _ = f.graph.PermissionsOf(ctx, role.ID)
	if len(set) != 0 {
		t.Fatalf("expected empty set after revoke, got %v", set.Authorities())
	}

	if err := f.graph.Assign(ctx, role.ID, []string{"missing"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown permission, got %v", err)
	}
	if err := f.graph.Assign(ctx, "missing", []string{perm.ID}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
}

func TestCreatePermissionValidatesEnums(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.graph.CreatePermission(ctx, "x", "", auth.ResourceType("SERVER"), auth.ActionRead); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for resource type, got %v", err)
	}
	if _, err := f.graph.CreatePermission(ctx, "x", "", auth.ResourceRack, auth.Action("PURGE")); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for action, got %v", err)
	}
	if _, err := f.graph.CreateRole(ctx, "two words", ""); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for role name, got %v", err)
	}
}

func TestDeletePermissionDetachesFromRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	manager := f.roles[auth.RoleManager].ID
	admin := f.roles[auth.RoleAdmin].ID

	perms, err := f.graph.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	var rackDelete auth.Permission
	for _, p := range perms {
		if p.Grant() == (auth.Grant{Resource: auth.ResourceRack, Action: auth.ActionDelete}) {
			rackDelete = p
		}
	}
	if rackDelete.ID == "" {
		t.Fatal("seeded RACK:DELETE permission missing")
	}

	if err := f.graph.DeletePermission(ctx, rackDelete.ID); err != nil {
		t.Fatalf("DeletePermission: %v", err)
	}
	for _, roleID := range []string{manager, admin} {
		set, err := f.graph.PermissionsOf(ctx, roleID)
		if err != nil {
			t.Fatalf("PermissionsOf: %v", err)
		}
		if set.Has(rackDelete.Grant()) {
			t.Fatalf("role %s still grants deleted permission", roleID)
		}
	}
	if err := f.graph.DeletePermission(ctx, rackDelete.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteRoleInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct-horse", auth.RoleViewer)

	err := f.graph.DeleteRole(ctx, f.roles[auth.RoleViewer].ID)
	var inUse *auth.RoleInUseError
	if !errors.As(err, &inUse) || inUse.Users != 1 {
		t.Fatalf("expected RoleInUseError with 1 user, got %v", err)
	}
	if !errors.Is(err, auth.ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse, got %v", err)
	}

	if err := f.graph.DeleteRole(ctx, f.roles[auth.RoleManager].ID); err != nil {
		t.Fatalf("DeleteRole unused: %v", err)
	}
	if _, err := f.graph.GetRole(ctx, f.roles[auth.RoleManager].ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viewer := f.roles[auth.RoleViewer].ID

	if _, err := f.users.Register(ctx, "bob", "short", viewer); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if _, err := f.users.Register(ctx, "bob", "long-enough", "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing role, got %v", err)
	}
	u, err := f.users.Register(ctx, "Bob", "long-enough", viewer)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "bob" || !u.Enabled() || u.PasswordHash == "long-enough" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := f.users.Register(ctx, "BOB", "long-enough", viewer); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}
