package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CredentialVerifier checks username/password pairs against stored users.
type CredentialVerifier struct {
	users UserStore
	roles AuthorityStore
}

func NewCredentialVerifier(users UserStore, roles AuthorityStore) (*CredentialVerifier, error) {
	if users == nil || roles == nil {
		return nil, errors.New("user and authority stores are required")
	}
	return &CredentialVerifier{users: users, roles: roles}, nil
}

// Authenticate resolves a principal with its flattened permission set.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials
// after a full bcrypt comparison.
func (v *CredentialVerifier) Authenticate(ctx context.Context, username, password string) (Principal, error) {
	username = normalizeUsername(username)
	user, err := v.users.FindUserByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		passwordMatches("", password)
		return Principal{}, ErrInvalidCredentials
	case err != nil:
		return Principal{}, fmt.Errorf("load user: %w", err)
	}
	if username == "" || !passwordMatches(user.PasswordHash, password) {
		return Principal{}, ErrInvalidCredentials
	}
	if !user.Enabled() {
		return Principal{}, ErrAccountDisabled
	}

	principal := Principal{
		UserID:      user.ID,
		Username:    user.Username,
		Permissions: PermissionSet{},
	}
	if user.RoleID == "" {
		return principal, nil
	}
	role, err := v.roles.GetRole(ctx, user.RoleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return principal, nil
		}
		return Principal{}, fmt.Errorf("load role: %w", err)
	}
	perms, err := v.roles.RolePermissions(ctx, role.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("load permissions: %w", err)
	}
	principal.Role = role.Name
	principal.Permissions = NewPermissionSet(perms)
	return principal, nil
}

// LoginResult is returned to a client after successful authentication.
type LoginResult struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Outcome hooks receive a short result label such as "ok" or
// "invalid_credentials".
type OutcomeHook func(result string)

// Service ties credential verification to token issuance and validation.
type Service struct {
	verifier  *CredentialVerifier
	tokens    *TokenService
	log       *zap.Logger
	onLogin   OutcomeHook
	onSession OutcomeHook
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithLoginHook(h OutcomeHook) ServiceOption {
	return func(s *Service) { s.onLogin = h }
}

func WithSessionHook(h OutcomeHook) ServiceOption {
	return func(s *Service) { s.onSession = h }
}

func NewService(verifier *CredentialVerifier, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if verifier == nil || tokens == nil {
		return nil, errors.New("credential verifier and token service are required")
	}
	s := &Service{verifier: verifier, tokens: tokens, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates credentials and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	principal, err := s.verifier.Authenticate(ctx, username, password)
	if err != nil {
		label := outcomeLabel(err)
		s.emit(s.onLogin, label)
		s.log.Info("login rejected", zap.String("reason", label))
		return LoginResult{}, err
	}
	token, exp, err := s.tokens.Issue(principal)
	if err != nil {
		s.emit(s.onLogin, "error")
		return LoginResult{}, err
	}
	s.emit(s.onLogin, "ok")
	s.log.Info("login succeeded", zap.String("user_id", principal.UserID), zap.String("role", principal.Role))
	return LoginResult{
		UserID:    principal.UserID,
		Username:  principal.Username,
		Role:      principal.Role,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

// Authenticate validates a bearer token and returns its session. The
// specific token failure is logged here; callers should collapse it.
func (s *Service) Authenticate(token string) (Session, error) {
	session, err := s.tokens.Authenticate(token)
	if err != nil {
		label := outcomeLabel(err)
		s.emit(s.onSession, label)
		s.log.Info("token rejected", zap.String("reason", label), zap.Error(err))
		return Session{}, err
	}
	s.emit(s.onSession, "ok")
	return session, nil
}

// VerifyToken reports only whether the token is unexpired. Full
// cryptographic validation stays internal.
func (s *Service) VerifyToken(token string) bool {
	return !s.tokens.IsExpired(token)
}

func (s *Service) emit(h OutcomeHook, label string) {
	if h != nil {
		h(label)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrTokenUnsupportedAlgorithm):
		return "token_unsupported_algorithm"
	case errors.Is(err, ErrTokenMalformed):
		return "token_malformed"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "token_signature_invalid"
	case errors.Is(err, ErrTokenIssuerMismatch):
		return "token_issuer_mismatch"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	default:
		return "error"
	}
}
