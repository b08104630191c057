package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

func mustRole(t *testing.T, s *Store, name string) auth.Role {
	t.Helper()
	r, err := s.CreateRole(context.Background(), auth.Role{Name: name})
	if err != nil {
		t.Fatalf("CreateRole %s: %v", name, err)
	}
	return r
}

func mustPermission(t *testing.T, s *Store, rt auth.ResourceType, action auth.Action) auth.Permission {
	t.Helper()
	g := auth.Grant{Resource: rt, Action: action}
	p, err := s.CreatePermission(context.Background(), auth.Permission{Name: g.String(), Resource: rt, Action: action})
	if err != nil {
		t.Fatalf("CreatePermission %s: %v", g, err)
	}
	return p
}

func permissionNames(perms []auth.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Name)
	}
	return out
}

func TestRoleWithoutLinksHasNoPermissions(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustPermission(t, s, auth.ResourceRole, auth.ActionDelete)
	mustPermission(t, s, auth.ResourceUser, auth.ActionWrite)
	auditor := mustRole(t, s, "AUDITOR")

	perms, err := s.RolePermissions(ctx, auditor.ID)
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("role with no links resolved %v", permissionNames(perms))
	}

	all, err := s.ListPermissions(ctx)
	if err != nil {
		t.Fatalf("ListPermissions: %v", err)
	}
	if !reflect.DeepEqual(permissionNames(all), []string{"ROLE:DELETE", "USER:WRITE"}) {
		t.Fatalf("unexpected catalogue %v", permissionNames(all))
	}

	if _, err := s.RolePermissions(ctx, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachDetachIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	read := mustPermission(t, s, auth.ResourceRack, auth.ActionRead)
	edit := mustPermission(t, s, auth.ResourceRack, auth.ActionEdit)
	role := mustRole(t, s, "RACKER")

	steps := []struct {
		name   string
		apply  func() error
		expect []string
	}{
		{"attach", func() error { return s.AttachPermissions(ctx, role.ID, []string{read.ID, edit.ID}) }, []string{"RACK:EDIT", "RACK:READ"}},
		{"attach again", func() error { return s.AttachPermissions(ctx, role.ID, []string{read.ID}) }, []string{"RACK:EDIT", "RACK:READ"}},
		{"detach", func() error { return s.DetachPermissions(ctx, role.ID, []string{edit.ID}) }, []string{"RACK:READ"}},
		{"detach absent", func() error { return s.DetachPermissions(ctx, role.ID, []string{edit.ID}) }, []string{"RACK:READ"}},
		{"detach last", func() error { return s.DetachPermissions(ctx, role.ID, []string{read.ID}) }, []string{}},
	}
	for _, step := range steps {
		if err := step.apply(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		perms, err := s.RolePermissions(ctx, role.ID)
		if err != nil {
			t.Fatalf("%s: RolePermissions: %v", step.name, err)
		}
		if got := permissionNames(perms); !reflect.DeepEqual(got, step.expect) {
			t.Fatalf("%s: got %v, want %v", step.name, got, step.expect)
		}
	}

	if err := s.AttachPermissions(ctx, role.ID, []string{"missing"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown permission, got %v", err)
	}
	if err := s.AttachPermissions(ctx, "missing", []string{read.ID}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
}

func TestDeleteConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()
	perm := mustPermission(t, s, auth.ResourceVM, auth.ActionRead)
	role := mustRole(t, s, "VMREADER")
	if err := s.AttachPermissions(ctx, role.ID, []string{perm.ID}); err != nil {
		t.Fatalf("AttachPermissions: %v", err)
	}
	user, err := s.CreateUser(ctx, auth.User{Username: "vic", RoleID: role.ID, Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.DeletePermission(ctx, perm.ID); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("linked permission: expected ErrConflict, got %v", err)
	}
	if err := s.DeleteRole(ctx, role.ID); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("assigned role: expected ErrConflict, got %v", err)
	}
	if n, _ := s.CountUsersWithRole(ctx, role.ID); n != 1 {
		t.Fatalf("CountUsersWithRole = %d", n)
	}

	other := mustRole(t, s, "OTHER")
	if _, err := s.SetUserRole(ctx, user.ID, other.ID); err != nil {
		t.Fatalf("SetUserRole: %v", err)
	}
	if err := s.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("DeleteRole after reassignment: %v", err)
	}
	if err := s.DeletePermission(ctx, perm.ID); err != nil {
		t.Fatalf("DeletePermission after role removal: %v", err)
	}
	if err := s.DeletePermission(ctx, perm.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPurgePermissionUnlinksEveryRole(t *testing.T) {
	s := New()
	ctx := context.Background()
	perm := mustPermission(t, s, auth.ResourceProject, auth.ActionDelete)
	keep := mustPermission(t, s, auth.ResourceProject, auth.ActionRead)
	a, b := mustRole(t, s, "A"), mustRole(t, s, "B")
	for _, r := range []auth.Role{a, b} {
		if err := s.AttachPermissions(ctx, r.ID, []string{perm.ID, keep.ID}); err != nil {
			t.Fatalf("AttachPermissions: %v", err)
		}
	}

	if err := s.PurgePermission(ctx, perm.ID); err != nil {
		t.Fatalf("PurgePermission: %v", err)
	}
	for _, r := range []auth.Role{a, b} {
		perms, _ := s.RolePermissions(ctx, r.ID)
		if got := permissionNames(perms); !reflect.DeepEqual(got, []string{"PROJECT:READ"}) {
			t.Fatalf("role %s still has %v", r.Name, got)
		}
	}
	if err := s.PurgePermission(ctx, perm.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOwnershipOrderingAndCascade(t *testing.T) {
	s := New()
	ctx := context.Background()
	adds := []struct {
		rt   auth.ResourceType
		id   string
		user string
	}{
		{auth.ResourceRack, "r9", "u2"},
		{auth.ResourceRack, "r1", "u2"},
		{auth.ResourceRack, "r1", "u1"},
		{auth.ResourceRack, "r1", "u1"},
		{auth.ResourceLocation, "r1", "u2"},
	}
	for _, a := range adds {
		if err := s.AddOwner(ctx, a.rt, a.id, a.user); err != nil {
			t.Fatalf("AddOwner: %v", err)
		}
	}

	owners, _ := s.Owners(ctx, auth.ResourceRack, "r1")
	if !reflect.DeepEqual(owners, []string{"u1", "u2"}) {
		t.Fatalf("Owners = %v", owners)
	}
	owned, _ := s.OwnedBy(ctx, auth.ResourceRack, "u2")
	if !reflect.DeepEqual(owned, []string{"r1", "r9"}) {
		t.Fatalf("OwnedBy = %v", owned)
	}

	if err := s.RemoveResource(ctx, auth.ResourceRack, "r1"); err != nil {
		t.Fatalf("RemoveResource: %v", err)
	}
	for _, u := range []string{"u1", "u2"} {
		if ok, _ := s.IsOwner(ctx, auth.ResourceRack, "r1", u); ok {
			t.Fatalf("%s still owns rack r1", u)
		}
	}
	owned, _ = s.OwnedBy(ctx, auth.ResourceRack, "u2")
	if !reflect.DeepEqual(owned, []string{"r9"}) {
		t.Fatalf("OwnedBy after cascade = %v", owned)
	}
	if ok, _ := s.IsOwner(ctx, auth.ResourceLocation, "r1", "u2"); !ok {
		t.Fatal("removing a rack must not touch a location with the same id")
	}
	owners, _ = s.Owners(ctx, auth.ResourceRack, "r1")
	if len(owners) != 0 {
		t.Fatalf("Owners after cascade = %v", owners)
	}
}
