package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrConflict      = errors.New("auth: conflict")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrConfiguration = errors.New("auth: configuration error")

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDisabled    = errors.New("auth: account disabled")

	ErrTokenMalformed            = errors.New("auth: token malformed")
	ErrTokenSignatureInvalid     = errors.New("auth: token signature invalid")
	ErrTokenUnsupportedAlgorithm = errors.New("auth: token algorithm unsupported")
	ErrTokenExpired              = errors.New("auth: token expired")
	ErrTokenIssuerMismatch       = errors.New("auth: token issuer mismatch")

	ErrUnauthenticated  = errors.New("auth: unauthenticated")
	ErrForbidden        = errors.New("auth: forbidden")
	ErrInsufficientRole = fmt.Errorf("%w: insufficient role", ErrForbidden)
	ErrNotOwner         = fmt.Errorf("%w: not owner", ErrForbidden)

	ErrRoleInUse = errors.New("auth: role has assigned users")
)

var tokenErrors = []error{
	ErrTokenMalformed,
	ErrTokenSignatureInvalid,
	ErrTokenUnsupportedAlgorithm,
	ErrTokenExpired,
	ErrTokenIssuerMismatch,
}

// IsTokenError reports whether err belongs to the token validation family.
// All members map to the same unauthenticated outcome at the edge.
func IsTokenError(err error) bool {
	for _, target := range tokenErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RoleInUseError rejects deletion of a role that users still reference.
type RoleInUseError struct {
	RoleID string
	Users  int
}

func (e *RoleInUseError) Error() string {
	return fmt.Sprintf("auth: role %s is assigned to %d user(s)", e.RoleID, e.Users)
}

func (e *RoleInUseError) Is(target error) bool {
	return target == ErrRoleInUse
}
