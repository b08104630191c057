package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/audit"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=256"`
}

type rolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids" validate:"required,min=1,dive,required"`
}

type createPermissionRequest struct {
	Name         string `json:"name" validate:"max=128"`
	Description  string `json:"description" validate:"max=256"`
	ResourceType string `json:"resource_type" validate:"required"`
	Action       string `json:"action" validate:"required"`
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8"`
	RoleID   string `json:"role_id" validate:"required"`
}

type changeRoleRequest struct {
	RoleID string `json:"role_id" validate:"required"`
}

type userStatusRequest struct {
	Active  *bool `json:"active"`
	Blocked *bool `json:"blocked"`
}

var (
	roleScope       = auth.Collection(auth.ResourceRole)
	permissionScope = auth.Collection(auth.ResourcePermission)
	userScope       = auth.Collection(auth.ResourceUser)
)

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, roleScope, auth.ActionRead) {
			return
		}
		list, err := a.graph.ListRoles(r.Context())
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": nonNil(list)})
	case http.MethodPost:
		if !a.authorize(w, r, roleScope, auth.ActionWrite) {
			return
		}
		var req createRoleRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		role, err := a.graph.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		_ = a.audit.Event(r.Context(), audit.EventRoleCreated, zap.String("role_id", role.ID), zap.String("name", role.Name))
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, roleScope, auth.ActionRead) {
			return
		}
		role, err := a.graph.GetRole(r.Context(), roleID)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.authorize(w, r, roleScope, auth.ActionDelete) {
			return
		}
		if err := a.graph.DeleteRole(r.Context(), roleID); err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		_ = a.audit.Event(r.Context(), audit.EventRoleDeleted, zap.String("role_id", roleID))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleRolePermissions lists (GET), assigns (POST) or revokes (DELETE)
// role permission links.
func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, roleScope, auth.ActionRead) {
			return
		}
		set, err := a.graph.PermissionsOf(r.Context(), roleID)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"role_id": roleID, "permissions": set.Authorities()})
	case http.MethodPost, http.MethodDelete:
		if !a.authorize(w, r, roleScope, auth.ActionEdit) {
			return
		}
		var req rolePermissionsRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		op, event := a.graph.Assign, audit.EventPermissionsAssigned
		if r.Method == http.MethodDelete {
			op, event = a.graph.Revoke, audit.EventPermissionsRevoked
		}
		if err := op(r.Context(), roleID, req.PermissionIDs); err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		_ = a.audit.Event(r.Context(), event, zap.String("role_id", roleID), zap.Strings("permission_ids", req.PermissionIDs))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, permissionScope, auth.ActionRead) {
			return
		}
		list, err := a.graph.ListPermissions(r.Context())
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": nonNil(list)})
	case http.MethodPost:
		if !a.authorize(w, r, permissionScope, auth.ActionWrite) {
			return
		}
		var req createPermissionRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		rt, err := auth.ParseResourceType(req.ResourceType)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		action, err := auth.ParseAction(req.Action)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		perm, err := a.graph.CreatePermission(r.Context(), req.Name, req.Description, rt, action)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		_ = a.audit.Event(r.Context(), audit.EventPermissionCreated, zap.String("permission_id", perm.ID), zap.Stringer("grant", perm.Grant()))
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.authorize(w, r, permissionScope, auth.ActionDelete) {
		return
	}
	permID := r.PathValue("id")
	if err := a.graph.DeletePermission(r.Context(), permID); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	_ = a.audit.Event(r.Context(), audit.EventPermissionDeleted, zap.String("permission_id", permID))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.authorize(w, r, userScope, auth.ActionRead) {
			return
		}
		list, err := a.users.List(r.Context())
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": nonNil(list)})
	case http.MethodPost:
		if !a.authorize(w, r, userScope, auth.ActionWrite) {
			return
		}
		var req createUserRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		user, err := a.users.Register(r.Context(), req.Username, req.Password, req.RoleID)
		if err != nil {
			a.handleDomainError(w, r, err)
			return
		}
		_ = a.audit.Event(r.Context(), audit.EventUserCreated, zap.String("new_user_id", user.ID), zap.String("role_id", user.RoleID))
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.authorize(w, r, userScope, auth.ActionRead) {
		return
	}
	user, err := a.users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUserRole rebinds a user's role. The change applies to sessions
// issued after the next login.
func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.authorize(w, r, userScope, auth.ActionEdit) {
		return
	}
	var req changeRoleRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	user, err := a.users.ChangeRole(r.Context(), r.PathValue("id"), req.RoleID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	_ = a.audit.Event(r.Context(), audit.EventUserRoleChanged, zap.String("target_user_id", user.ID), zap.String("role_id", user.RoleID))
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if !a.authorize(w, r, userScope, auth.ActionEdit) {
		return
	}
	var req userStatusRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	user, err := a.users.SetStatus(r.Context(), r.PathValue("id"), auth.UserStatus{Active: req.Active, Blocked: req.Blocked})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	_ = a.audit.Event(r.Context(), audit.EventUserStatusChanged,
		zap.String("target_user_id", user.ID),
		zap.Bool("active", user.Active),
		zap.Bool("blocked", user.Blocked),
	)
	writeJSON(w, http.StatusOK, user)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
