package grpcapi

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the access API.
const ServiceName = "inventory-access"

// Server wraps a grpc.Server with authentication interceptors and the
// standard health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *zap.Logger
}

type options struct {
	log     *zap.Logger
	public  []string
	extra   []grpc.ServerOption
	decider Decider
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithPublicMethods replaces the set of full method names that skip
// authentication. Health checks are public by default.
func WithPublicMethods(methods ...string) Option {
	return func(o *options) { o.public = methods }
}

// WithDecider registers the authenticated access-check service.
func WithDecider(d Decider) Option {
	return func(o *options) { o.decider = d }
}

func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}

func New(authn Authenticator, opts ...Option) (*Server, error) {
	if authn == nil {
		return nil, errors.New("grpcapi: authenticator is required")
	}
	o := options{
		log: zap.NewNop(),
		public: []string{
			healthpb.Health_Check_FullMethodName,
			healthpb.Health_Watch_FullMethodName,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	ic := &interceptor{authn: authn, public: make(map[string]struct{}, len(o.public)), log: o.log}
	for _, m := range o.public {
		ic.public[m] = struct{}{}
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(ic.unary, logUnary(o.log)),
		grpc.ChainStreamInterceptor(ic.stream),
	}, o.extra...)
	s := &Server{
		grpc:   grpc.NewServer(serverOpts...),
		health: health.NewServer(),
		log:    o.log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	if o.decider != nil {
		s.grpc.RegisterService(&accessServiceDesc, &accessServer{decider: o.decider, log: o.log})
	}
	s.SetServing(false)
	return s, nil
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// SetServing flips both the overall and the named service status.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// WatchReadiness polls check until ctx is done and mirrors the result into
// the health service.
func (s *Server) WatchReadiness(ctx context.Context, check func(context.Context) error, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	probe := func() {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := check(cctx)
		if err != nil {
			s.log.Warn("readiness check failed", zap.Error(err))
		}
		s.SetServing(err == nil)
	}
	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// GracefulStop marks the server as not serving and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
