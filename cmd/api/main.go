package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/audit"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/config"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/grpcapi"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/httpapi"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/obs"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/store/memory"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/store/pg"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/store/redisowner"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/stream"
)

func main() {
	configPath := flag.String("config", os.Getenv("INVENTORY_CONFIG"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := obs.NewLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("inventory-access stopped", zap.Error(err))
	}
}

type stores struct {
	users  auth.UserStore
	graph  auth.AuthorityStore
	owners auth.OwnershipStore
	ready  httpapi.ReadyProbe
	// seed is set when the backing store starts empty on every boot.
	seed    bool
	closers []func() error
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	s := &stores{}
	if cfg.Database.DSN != "" {
		db, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.users, s.graph, s.owners = db, db, db
		s.ready.DB = db.DB()
		s.closers = append(s.closers, db.Close)
		log.Info("using postgres stores")
	} else {
		mem := memory.New()
		s.users, s.graph, s.owners = mem, mem, mem
		s.seed = true
		log.Warn("database.dsn not set; using in-memory stores")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		owners, err := redisowner.New(client, redisowner.WithKeyPrefix(cfg.Redis.KeyPrefix))
		if err != nil {
			return nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := owners.Ping(pctx); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		s.owners = owners
		s.ready.Deps = append(s.ready.Deps, owners)
		s.closers = append(s.closers, client.Close)
		log.Info("using redis ownership index", zap.String("addr", cfg.Redis.Addr))
	}
	return s, nil
}

// bootstrapAdmin gives an in-memory deployment its first account. Without one
// no protected route is reachable.
func bootstrapAdmin(ctx context.Context, creds config.Credentials, graph *auth.AuthorityGraph, users *auth.Users, log *zap.Logger) error {
	if creds.Username == "" {
		log.Warn("auth.bootstrap_admin_user not set; in-memory stores have no accounts")
		return nil
	}
	u, err := auth.BootstrapAdmin(ctx, graph, users, creds.Username, creds.Password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.Info("bootstrap admin created", zap.String("username", u.Username), zap.String("user_id", u.ID))
	return nil
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewMetrics()
	metrics.SetBuildInfo(obs.Version, obs.Commit)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range st.closers {
			_ = c()
		}
	}()

	graph, err := auth.NewAuthorityGraph(st.graph, st.users, log.Named("authority"))
	if err != nil {
		return err
	}
	users, err := auth.NewUsers(st.users, st.graph)
	if err != nil {
		return err
	}
	if st.seed {
		if _, err := auth.SeedDefaults(ctx, graph); err != nil {
			return fmt.Errorf("seed defaults: %w", err)
		}
		if err := bootstrapAdmin(ctx, cfg.Auth.BootstrapAdmin, graph, users, log); err != nil {
			return err
		}
	}
	ownership, err := auth.NewOwnership(st.owners, st.users, log.Named("ownership"))
	if err != nil {
		return err
	}
	verifier, err := auth.NewCredentialVerifier(st.users, st.graph)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.TokenConfig())
	if err != nil {
		return err
	}
	svc, err := auth.NewService(verifier, tokens,
		auth.WithLogger(log.Named("auth")),
		auth.WithLoginHook(metrics.RecordLogin),
		auth.WithSessionHook(metrics.RecordSession),
	)
	if err != nil {
		return err
	}
	evaluator, err := auth.NewEvaluator(ownership,
		auth.WithBypassRoles(cfg.Auth.BypassRoles...),
		auth.WithEvaluatorLogger(log.Named("evaluator")),
		auth.WithDecisionHook(metrics.RecordDecision),
	)
	if err != nil {
		return err
	}

	events := stream.New(64)
	api, err := httpapi.New(httpapi.Deps{
		Service:    svc,
		Evaluator:  evaluator,
		Graph:      graph,
		Users:      users,
		Ownership:  ownership,
		Audit:      audit.New(log, audit.WithPublisher(events)),
		Metrics:    metrics,
		Events:     events,
		Log:        log,
		Ready:      st.ready,
		Version:    obs.Version,
		RateBurst:  cfg.HTTP.RateBurst,
		RatePerSec: cfg.HTTP.RatePerSec,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv, err := grpcapi.New(svc, grpcapi.WithLogger(log.Named("grpc")), grpcapi.WithDecider(evaluator))
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPC.Addr, err)
	}
	go grpcSrv.WatchReadiness(ctx, st.ready.Check, 10*time.Second)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", obs.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("stopped")
	return nil
}
