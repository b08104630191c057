package grpcapi

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

const authMetadataKey = "authorization"

// Authenticator resolves a bearer token into a session.
type Authenticator interface {
	Authenticate(token string) (auth.Session, error)
}

type interceptor struct {
	authn  Authenticator
	public map[string]struct{}
	log    *zap.Logger
}

// unary authenticates every call outside the public set and attaches the
// session before the handler runs.
func (ic *interceptor) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := ic.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (ic *interceptor) stream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := ic.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &sessionStream{ServerStream: ss, ctx: ctx})
}

func (ic *interceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	if _, ok := ic.public[method]; ok {
		return ctx, nil
	}
	token, ok := bearerFromMetadata(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	session, err := ic.authn.Authenticate(token)
	if err != nil {
		ic.log.Debug("grpc token rejected", zap.String("method", method), zap.Error(err))
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	next, err := auth.ContextWithSession(ctx, session)
	if err != nil {
		return nil, status.Error(codes.Internal, "authentication error")
	}
	return next, nil
}

func bearerFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(authMetadataKey)
	if len(values) == 0 {
		return "", false
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type sessionStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *sessionStream) Context() context.Context { return s.ctx }

// logUnary records one entry per completed call.
func logUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
		}
		if uid, ok := auth.UserIDFromContext(ctx); ok {
			fields = append(fields, zap.String("user_id", uid))
		}
		log.Info("rpc_complete", fields...)
		return resp, err
	}
}
