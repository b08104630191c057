package auth

import (
	"context"
	"errors"
	"testing"
)

func TestPrincipalPermissions(t *testing.T) {
	perms := []Permission{
		{ID: "p1", Resource: ResourceLocation, Action: ActionRead},
		{ID: "p2", Resource: ResourceLocation, Action: ActionRead},
		{ID: "p3", Resource: ResourceRack, Action: ActionEdit},
	}
	principal := Principal{UserID: "u1", Username: "bob", Permissions: NewPermissionSet(perms)}

	if len(principal.Permissions) != 2 {
		t.Fatalf("expected duplicates to collapse, got %v", principal.Permissions.Authorities())
	}
	if !principal.HasPermission(ResourceRack, ActionEdit) {
		t.Fatalf("expected permission")
	}
	if principal.HasPermission(ResourceRack, ActionDelete) {
		t.Fatalf("unexpected permission")
	}
}

func TestAuthoritiesRoundTrip(t *testing.T) {
	in := alicePrincipal()
	out, err := principalFromAuthorities(in.UserID, in.Username, in.authorities())
	if err != nil {
		t.Fatalf("principalFromAuthorities: %v", err)
	}
	if out.Role != in.Role || len(out.Permissions) != len(in.Permissions) {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
	if _, err := principalFromAuthorities("u", "n", []string{"LOCATION:FLY"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown action, got %v", err)
	}
}

func TestSessionAttachedOnce(t *testing.T) {
	ctx, err := ContextWithSession(context.Background(), Session{Principal: alicePrincipal(), Token: "t"})
	if err != nil {
		t.Fatalf("ContextWithSession: %v", err)
	}
	if _, err := ContextWithSession(ctx, Session{Principal: Principal{UserID: "mallory"}}); err == nil {
		t.Fatal("expected second attach to fail")
	}
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-alice" {
		t.Fatalf("unexpected user id %q ok=%v", id, ok)
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal on bare context")
	}
}
