package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Reason explains a decision for logs and metrics. It is never sent to
// callers.
type Reason string

const (
	ReasonGranted          Reason = "granted"
	ReasonOwnershipBypass  Reason = "ownership_bypass"
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonNotOwner         Reason = "not_owner"
	ReasonLookupFailed     Reason = "lookup_failed"
)

// Decision is the binary outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err maps a deny to its sentinel; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	case ReasonInsufficientRole:
		return ErrInsufficientRole
	default:
		return ErrNotOwner
	}
}

// OwnershipChecker answers live ownership membership queries.
type OwnershipChecker interface {
	IsOwner(ctx context.Context, rt ResourceType, resourceID, userID string) (bool, error)
}

// DecisionHook observes every decision, e.g. for metrics.
type DecisionHook func(target Target, action Action, d Decision)

// Evaluator combines the principal's role permissions with the ownership
// index to allow or deny an action.
type Evaluator struct {
	owners OwnershipChecker
	bypass map[string]struct{}
	log    *zap.Logger
	hook   DecisionHook
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBypassRoles lists roles that act on any instance regardless of
// ownership. Role permissions are still required.
func WithBypassRoles(roles ...string) EvaluatorOption {
	return func(e *Evaluator) {
		for _, r := range roles {
			r = strings.ToUpper(strings.TrimSpace(r))
			if r != "" {
				e.bypass[r] = struct{}{}
			}
		}
	}
}

func WithEvaluatorLogger(log *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if log != nil {
			e.log = log
		}
	}
}

func WithDecisionHook(h DecisionHook) EvaluatorOption {
	return func(e *Evaluator) { e.hook = h }
}

func NewEvaluator(owners OwnershipChecker, opts ...EvaluatorOption) (*Evaluator, error) {
	if owners == nil {
		return nil, errors.New("ownership checker is required")
	}
	e := &Evaluator{
		owners: owners,
		bypass: make(map[string]struct{}),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decide evaluates principal against target and action:
//  1. no principal → unauthenticated
//  2. role lacks (type, action) → insufficient role
//  3. collection target → allow
//  4. instance target → owner or bypass role, else not owner
//
// Collection allows do not restrict results; callers filter to owned
// instances themselves. A lookup failure denies and returns the error.
func (e *Evaluator) Decide(ctx context.Context, principal *Principal, target Target, action Action) (Decision, error) {
	d, err := e.decide(ctx, principal, target, action)
	if e.hook != nil {
		e.hook(target, action, d)
	}
	if !d.Allowed {
		fields := []zap.Field{
			zap.Stringer("target", target),
			zap.String("action", string(action)),
			zap.String("reason", string(d.Reason)),
		}
		if principal != nil {
			fields = append(fields, zap.String("user_id", principal.UserID))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		e.log.Info("access denied", fields...)
	}
	return d, err
}

func (e *Evaluator) decide(ctx context.Context, principal *Principal, target Target, action Action) (Decision, error) {
	if principal == nil || principal.UserID == "" {
		return Decision{Reason: ReasonUnauthenticated}, nil
	}
	if !principal.HasPermission(target.Type, action) {
		return Decision{Reason: ReasonInsufficientRole}, nil
	}
	if !target.IsInstance() {
		return Decision{Allowed: true, Reason: ReasonGranted}, nil
	}
	if _, ok := e.bypass[strings.ToUpper(principal.Role)]; ok {
		return Decision{Allowed: true, Reason: ReasonOwnershipBypass}, nil
	}
	owner, err := e.owners.IsOwner(ctx, target.Type, target.ID, principal.UserID)
	if err != nil {
		return Decision{Reason: ReasonLookupFailed}, err
	}
	if !owner {
		return Decision{Reason: ReasonNotOwner}, nil
	}
	return Decision{Allowed: true, Reason: ReasonGranted}, nil
}

// Authorize is the call-site guard for protected operations. It reads the
// principal from the session context and returns nil, ErrUnauthenticated,
// or an error wrapping ErrForbidden.
func (e *Evaluator) Authorize(ctx context.Context, target Target, action Action) error {
	var principal *Principal
	if p, ok := PrincipalFromContext(ctx); ok {
		principal = &p
	}
	d, err := e.Decide(ctx, principal, target, action)
	if err != nil {
		return err
	}
	return d.Err()
}
