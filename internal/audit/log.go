// Package audit writes the security audit trail: login outcomes, access
// denials and changes to the authority graph and ownership index.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/stream"
)

const (
	EventLoginSucceeded      = "auth.login.succeeded"
	EventLoginFailed         = "auth.login.failed"
	EventAccessDenied        = "access.denied"
	EventRoleCreated         = "rbac.role.created"
	EventRoleDeleted         = "rbac.role.deleted"
	EventPermissionCreated   = "rbac.permission.created"
	EventPermissionDeleted   = "rbac.permission.deleted"
	EventPermissionsAssigned = "rbac.permissions.assigned"
	EventPermissionsRevoked  = "rbac.permissions.revoked"
	EventUserCreated         = "user.created"
	EventUserRoleChanged     = "user.role_changed"
	EventUserStatusChanged   = "user.status_changed"
	EventOwnerAdded          = "ownership.owner_added"
	EventOwnerRemoved        = "ownership.owner_removed"
	EventResourceReleased    = "ownership.resource_released"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Publisher receives a copy of every audit entry.
type Publisher interface {
	Publish(stream.Event)
}

// Logger emits audit entries through a dedicated named zap logger.
type Logger struct {
	log *zap.Logger
	pub Publisher
	now func() time.Time
}

type Option func(*Logger)

// WithPublisher mirrors entries to pub, e.g. a stream.Broker.
func WithPublisher(pub Publisher) Option {
	return func(l *Logger) { l.pub = pub }
}

func New(log *zap.Logger, opts ...Option) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Logger{log: log.Named("audit"), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Event writes an audit entry enriched with request and user context.
func (l *Logger) Event(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	rec := stream.Event{Name: event, RequestID: RequestIDFromContext(ctx), Timestamp: l.now().UTC()}
	entry := make([]zap.Field, 0, len(fields)+4)
	entry = append(entry, zap.String("type", "audit"), zap.String("event", event))
	if rec.RequestID != "" {
		entry = append(entry, zap.String("request_id", rec.RequestID))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok && p.UserID != "" {
		rec.UserID, rec.Username = p.UserID, p.Username
		entry = append(entry, zap.String("user_id", p.UserID), zap.String("username", p.Username))
	}
	entry = append(entry, zap.Dict("fields", fields...))
	l.log.Info(event, entry...)

	if l.pub != nil {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		rec.Fields = enc.Fields
		l.pub.Publish(rec)
	}
	return nil
}

// Denied records a denied access decision. Matches the shape callers use
// after Evaluator.Authorize fails.
func (l *Logger) Denied(ctx context.Context, target auth.Target, action auth.Action, err error) {
	_ = l.Event(ctx, EventAccessDenied,
		zap.Stringer("target", target),
		zap.String("action", string(action)),
		zap.Error(err),
	)
}
