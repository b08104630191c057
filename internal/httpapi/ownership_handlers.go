package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/audit"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

type addOwnerRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// resourceTarget parses {type}/{id}. An unknown type is reported as not
// found, like any other unreachable instance.
func resourceTarget(w http.ResponseWriter, r *http.Request) (auth.Target, bool) {
	rt, err := auth.ParseResourceType(r.PathValue("type"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return auth.Target{}, false
	}
	return auth.Instance(rt, r.PathValue("id")), true
}

// handleOwners lists (GET) or adds (POST) owners of an instance; DELETE
// releases every owner when the instance itself is removed.
func (a *API) handleOwners(w http.ResponseWriter, r *http.Request) {
	target, ok := resourceTarget(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, target, auth.ActionRead) {
			return
		}
		owners, err := a.ownership.Owners(r.Context(), target)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"resource_type": target.Type,
			"resource_id":   target.ID,
			"owners":        nonNil(owners),
		})
	case http.MethodPost:
		if !a.authorize(w, r, target, auth.ActionEdit) {
			return
		}
		var req addOwnerRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		if err := a.ownership.AddOwner(r.Context(), target, req.UserID); err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		_ = a.audit.Event(r.Context(), audit.EventOwnerAdded, zap.Stringer("target", target), zap.String("owner_id", req.UserID))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if !a.authorize(w, r, target, auth.ActionDelete) {
			return
		}
		if err := a.ownership.RemoveResource(r.Context(), target); err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		_ = a.audit.Event(r.Context(), audit.EventResourceReleased, zap.Stringer("target", target))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleOwner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	target, ok := resourceTarget(w, r)
	if !ok {
		return
	}
	if !a.authorize(w, r, target, auth.ActionEdit) {
		return
	}
	userID := r.PathValue("user")
	if err := a.ownership.RemoveOwner(r.Context(), target, userID); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	_ = a.audit.Event(r.Context(), audit.EventOwnerRemoved, zap.Stringer("target", target), zap.String("owner_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

// handleClaim records the caller as owner of an instance it just created.
// Creating requires WRITE on the resource type's collection.
func (a *API) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	target, ok := resourceTarget(w, r)
	if !ok {
		return
	}
	if !a.authorize(w, r, auth.Collection(target.Type), auth.ActionWrite) {
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	if err := a.ownership.ClaimCreated(r.Context(), p, target); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	_ = a.audit.Event(r.Context(), audit.EventOwnerAdded, zap.Stringer("target", target), zap.String("owner_id", p.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// handleOwnedBy lists instance ids of a type owned by a user. Callers may
// always list their own; listing another user's requires USER:READ.
func (a *API) handleOwnedBy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rt, err := auth.ParseResourceType(r.PathValue("type"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
		return
	}
	userID := r.PathValue("id")
	scope := auth.Collection(rt)
	if self, _ := auth.UserIDFromContext(r.Context()); self != userID {
		scope = userScope
	}
	if !a.authorize(w, r, scope, auth.ActionRead) {
		return
	}
	ids, err := a.ownership.OwnedBy(r.Context(), rt, userID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"resource_type": rt,
		"resource_ids":  nonNil(ids),
	})
}
