package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/cargoflow/accessctl"
	"github.com/cargoflow/accessctl/logger"
	"github.com/cargoflow/accessctl/stores"
)

// serverConfig is read from ACCESSCTL_* environment variables.
type serverConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	StoreDriver     string        `envconfig:"STORE_DRIVER" default:"memory" validate:"oneof=memory sqlite"`
	SQLiteDSN       string        `envconfig:"SQLITE_DSN" default:"file:accessctl.db?mode=rwc"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	ConfigFile      string        `envconfig:"CONFIG_FILE"`
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"60s"`
	AuditQueue      int           `envconfig:"AUDIT_QUEUE" default:"1024" validate:"gt=0"`
	AdminRateLimit  int           `envconfig:"ADMIN_RATE_LIMIT" default:"60" validate:"gt=0"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	SeedSystemRoles bool          `envconfig:"SEED_SYSTEM_ROLES" default:"true"`
	GenericDenials  bool          `envconfig:"GENERIC_DENIALS"`
}

func loadServerConfig() (*serverConfig, error) {
	var cfg serverConfig
	if err := envconfig.Process("accessctl", &cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.NewPhusluLogger()

	cfg, err := loadServerConfig()
	if err != nil {
		log.Error("load config", "error", err.Error())
		os.Exit(1)
	}

	resources, roles, policies, audit, cleanup, err := buildStores(cfg)
	if err != nil {
		log.Error("init stores", "error", err.Error())
		os.Exit(1)
	}
	defer cleanup()

	opts := []accessctl.Option{
		accessctl.WithLogger(log),
		accessctl.WithCacheTTL(cfg.CacheTTL),
		accessctl.WithAuditQueueSize(cfg.AuditQueue),
		accessctl.WithMetrics(nil),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis ping", "error", err.Error())
		}
		defer rdb.Close()
		opts = append(opts, accessctl.WithUserDirectory(stores.NewRedisUserDirectory(rdb)))
	}

	mgr, err := accessctl.NewManager(resources, roles, policies, audit, opts...)
	if err != nil {
		log.Error("init manager", "error", err.Error())
		os.Exit(1)
	}

	if cfg.SeedSystemRoles {
		if err := mgr.SeedSystemRoles(ctx); err != nil {
			log.Error("seed system roles", "error", err.Error())
			os.Exit(1)
		}
	}
	if cfg.ConfigFile != "" {
		fileCfg, err := accessctl.NewConfigLoader().LoadFile(cfg.ConfigFile)
		if err != nil {
			log.Error("load config file", "path", cfg.ConfigFile, "error", err.Error())
			os.Exit(1)
		}
		if err := mgr.ApplyConfig(ctx, fileCfg); err != nil {
			log.Error("apply config file", "path", cfg.ConfigFile, "error", err.Error())
			os.Exit(1)
		}
	}

	srv := newServer(mgr, log, cfg)
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Addr, "driver", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown", "error", err.Error())
	}

	// drains the audit queue before the deferred cleanup closes the stores
	mgr.Close()
}

func buildStores(cfg *serverConfig) (accessctl.ResourceStore, accessctl.RoleStore, accessctl.PolicyStore, accessctl.AuditStore, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		sqlDB, err := sql.Open("sqlite", cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db := squealx.NewDb(sqlDB, "sqlite", "accessctl")
		if err := stores.Migrate(db); err != nil {
			sqlDB.Close()
			return nil, nil, nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		cleanup := func() { sqlDB.Close() }
		return stores.NewSQLResourceStore(db), stores.NewSQLRoleStore(db), stores.NewSQLPolicyStore(db), stores.NewSQLAuditStore(db), cleanup, nil
	default:
		return accessctl.NewMemoryResourceStore(), accessctl.NewMemoryRoleStore(), accessctl.NewMemoryPolicyStore(), accessctl.NewMemoryAuditStore(), func() {}, nil
	}
}
