package grpcapi

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
)

// DenialStatus converts the result of Evaluator.Authorize for target. Any
// denial on a specific instance is reported as NotFound so callers cannot
// probe for existence.
func DenialStatus(target auth.Target, err error) error {
	if err != nil && target.IsInstance() && errors.Is(err, auth.ErrForbidden) {
		return status.Error(codes.NotFound, "resource not found")
	}
	return StatusFromError(err)
}

// StatusFromError converts access-control errors to gRPC statuses.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case auth.IsTokenError(err), errors.Is(err, auth.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "authentication required")
	case errors.Is(err, auth.ErrNotOwner), errors.Is(err, auth.ErrNotFound):
		return status.Error(codes.NotFound, "resource not found")
	case errors.Is(err, auth.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, auth.ErrRoleInUse), errors.Is(err, auth.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
