package grpcapi

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

// AccessCheckFullMethod answers "may the caller perform action on target".
// Request fields: resource, action and an optional id. Response: allowed.
const AccessCheckFullMethod = "/inventory.access.v1.Access/Check"

// Decider is satisfied by *auth.Evaluator.
type Decider interface {
	Decide(ctx context.Context, principal *auth.Principal, target auth.Target, action auth.Action) (auth.Decision, error)
}

type accessHandler interface {
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type accessServer struct {
	decider Decider
	log     *zap.Logger
}

var accessServiceDesc = grpc.ServiceDesc{
	ServiceName: "inventory.access.v1.Access",
	HandlerType: (*accessHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: accessCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/access/v1/access.proto",
}

func accessCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(accessHandler).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AccessCheckFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(accessHandler).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func (a *accessServer) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	rt, err := auth.ParseResourceType(fields["resource"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	action, err := auth.ParseAction(fields["action"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	target := auth.Collection(rt)
	if id := strings.TrimSpace(fields["id"].GetStringValue()); id != "" {
		target = auth.Instance(rt, id)
	}

	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	d, err := a.decider.Decide(ctx, &p, target, action)
	if err != nil {
		a.log.Error("access check failed", zap.Stringer("target", target), zap.Error(err))
		return nil, status.Error(codes.Internal, "authorization unavailable")
	}
	return structpb.NewStruct(map[string]any{"allowed": d.Allowed})
}
