package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Target names what a protected operation acts on: a whole collection of a
// resource type, or one instance of it.
type Target struct {
	Type ResourceType
	ID   string
}

// Collection targets every instance of rt.
func Collection(rt ResourceType) Target { return Target{Type: rt} }

// Instance targets a single resource instance.
func Instance(rt ResourceType, id string) Target {
	return Target{Type: rt, ID: strings.TrimSpace(id)}
}

// IsInstance reports whether the target names a specific instance.
func (t Target) IsInstance() bool { return t.ID != "" }

func (t Target) String() string {
	if t.IsInstance() {
		return string(t.Type) + "/" + t.ID
	}
	return string(t.Type)
}

// Ownership maintains which users are assigned to which resource instances.
// Ownership never implies a role; it only narrows instance-level access.
type Ownership struct {
	store OwnershipStore
	users UserStore
	log   *zap.Logger
}

func NewOwnership(store OwnershipStore, users UserStore, log *zap.Logger) (*Ownership, error) {
	if store == nil || users == nil {
		return nil, errors.New("ownership and user stores are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ownership{store: store, users: users, log: log}, nil
}

// AddOwner assigns userID to the instance. Re-adding is a no-op.
func (o *Ownership) AddOwner(ctx context.Context, target Target, userID string) error {
	userID, err := o.ownerArgs(target, userID)
	if err != nil {
		return err
	}
	if _, err := o.users.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := o.store.AddOwner(ctx, target.Type, target.ID, userID); err != nil {
		return err
	}
	o.log.Debug("owner added", zap.Stringer("target", target), zap.String("user_id", userID))
	return nil
}

// RemoveOwner revokes userID from the instance. Removing an absent owner is
// a no-op.
func (o *Ownership) RemoveOwner(ctx context.Context, target Target, userID string) error {
	userID, err := o.ownerArgs(target, userID)
	if err != nil {
		return err
	}
	return o.store.RemoveOwner(ctx, target.Type, target.ID, userID)
}

// RemoveResource drops every owner of the instance; called when the
// resource itself is deleted.
func (o *Ownership) RemoveResource(ctx context.Context, target Target) error {
	if err := validateInstance(target); err != nil {
		return err
	}
	return o.store.RemoveResource(ctx, target.Type, target.ID)
}

// ClaimCreated makes the creating principal an owner of a new instance.
func (o *Ownership) ClaimCreated(ctx context.Context, creator Principal, target Target) error {
	if creator.UserID == "" {
		return ErrUnauthenticated
	}
	if err := validateInstance(target); err != nil {
		return err
	}
	return o.store.AddOwner(ctx, target.Type, target.ID, creator.UserID)
}

func (o *Ownership) IsOwner(ctx context.Context, rt ResourceType, resourceID, userID string) (bool, error) {
	if resourceID == "" || userID == "" {
		return false, nil
	}
	return o.store.IsOwner(ctx, rt, resourceID, userID)
}

func (o *Ownership) Owners(ctx context.Context, target Target) ([]string, error) {
	if err := validateInstance(target); err != nil {
		return nil, err
	}
	return o.store.Owners(ctx, target.Type, target.ID)
}

// OwnedBy lists instance ids of rt owned by userID. Collection-scope
// operations use it to narrow their results after an allow decision.
func (o *Ownership) OwnedBy(ctx context.Context, rt ResourceType, userID string) ([]string, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, rt)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return o.store.OwnedBy(ctx, rt, userID)
}

func (o *Ownership) ownerArgs(target Target, userID string) (string, error) {
	if err := validateInstance(target); err != nil {
		return "", err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return userID, nil
}

func validateInstance(target Target) error {
	if !target.Type.Valid() {
		return fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, target.Type)
	}
	if !target.IsInstance() {
		return fmt.Errorf("%w: resource id is required", ErrInvalidInput)
	}
	return nil
}
