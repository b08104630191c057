package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/auth"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/migrate"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/obs"
	"github.com/ashutosh0640/inventorywithzabbix-sub000/internal/store/pg"
)

func main() {
	var (
		dsn           = flag.String("dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL DSN")
		adminUser     = flag.String("admin-user", os.Getenv("INVENTORY_ADMIN_USER"), "seed: bootstrap admin username")
		adminPassword = flag.String("admin-password", os.Getenv("INVENTORY_ADMIN_PASSWORD"), "seed: bootstrap admin password")
	)
	flag.Parse()

	log, err := obs.NewLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_DSN")
	}
	if flag.NArg() == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), migrate.Schema())

	switch cmd := flag.Arg(0); cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			log.Info("migration applied", zap.String("name", name))
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			log.Info("nothing to roll back")
			err = nil
		} else if err == nil {
			log.Info("migration reverted", zap.String("name", name))
		}
	case "seed":
		err = seed(ctx, mgr, store, *adminUser, *adminPassword, log)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		log.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil {
		log.Fatal("migrate failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}

// seed installs the permission catalogue and builtin roles once, then
// optionally a bootstrap admin account.
func seed(ctx context.Context, mgr *migrate.Manager, store *pg.Store, adminUser, adminPassword string, log *zap.Logger) error {
	graph, err := auth.NewAuthorityGraph(store, store, log)
	if err != nil {
		return err
	}
	ran, err := mgr.Seed(ctx, "builtin_roles", func(ctx context.Context) error {
		_, err := auth.SeedDefaults(ctx, graph)
		return err
	})
	if err != nil {
		return err
	}
	log.Info("builtin roles", zap.Bool("seeded", ran))

	if adminUser == "" {
		return nil
	}
	users, err := auth.NewUsers(store, store)
	if err != nil {
		return err
	}
	ran, err = mgr.Seed(ctx, "bootstrap_admin", func(ctx context.Context) error {
		_, err := auth.BootstrapAdmin(ctx, graph, users, adminUser, adminPassword)
		return err
	})
	if err != nil {
		return err
	}
	log.Info("bootstrap admin", zap.String("username", adminUser), zap.Bool("created", ran))
	return nil
}
