package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/audit"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type meResponse struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	res, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		_ = a.audit.Event(r.Context(), audit.EventLoginFailed,
			zap.String("username", strings.ToLower(strings.TrimSpace(req.Username))),
			zap.String("remote_ip", clientIP(r)),
		)
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, r, "invalid credentials")
		case errors.Is(err, auth.ErrAccountDisabled):
			writeUnauthorized(w, r, "account disabled")
		default:
			a.handleDomainError(w, r, err)
		}
		return
	}
	_ = a.audit.Event(r.Context(), audit.EventLoginSucceeded,
		zap.String("login_user_id", res.UserID),
		zap.String("role", res.Role),
		zap.Time("expires_at", res.ExpiresAt),
	)
	writeJSON(w, http.StatusOK, res)
}

// handleVerify reports only whether a token is still unexpired.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": a.svc.VerifyToken(req.Token)})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, "authentication required")
		return
	}
	p := session.Principal
	writeJSON(w, http.StatusOK, meResponse{
		UserID:      p.UserID,
		Username:    p.Username,
		Role:        p.Role,
		Permissions: p.Permissions.Authorities(),
		ExpiresAt:   session.ExpiresAt,
	})
}

// handleAccessCheck lets downstream services ask whether the caller may
// perform action on a resource. Only the boolean outcome is returned.
func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	rt, err := auth.ParseResourceType(q.Get("resource"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
		return
	}
	action, err := auth.ParseAction(q.Get("action"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
		return
	}
	target := auth.Collection(rt)
	if id := q.Get("id"); id != "" {
		target = auth.Instance(rt, id)
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, r, "authentication required")
		return
	}
	d, err := a.evaluator.Decide(r.Context(), &p, target, action)
	if err != nil {
		a.log.Error("access check failed", zap.Stringer("target", target), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "authorization unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": d.Allowed})
}
