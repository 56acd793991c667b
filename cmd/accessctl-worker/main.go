// Command accessctl-worker consumes queued audit records and persists them.
// It pairs with an accessctl deployment that uses auditq.QueueSink as its
// audit store; the sink enqueues, this worker writes through to SQLite.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/kelseyhightower/envconfig"
	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/cargoflow/accessctl/auditq"
	"github.com/cargoflow/accessctl/logger"
	"github.com/cargoflow/accessctl/stores"
)

type workerConfig struct {
	RedisAddr   string `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required"`
	SQLiteDSN   string `envconfig:"SQLITE_DSN" default:"file:accessctl.db?mode=rwc"`
	Concurrency int    `envconfig:"CONCURRENCY" default:"4" validate:"gt=0"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.NewPhusluLogger()

	var cfg workerConfig
	if err := envconfig.Process("accessctl", &cfg); err != nil {
		log.Error("load config", "error", err.Error())
		os.Exit(1)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		log.Error("validate config", "error", err.Error())
		os.Exit(1)
	}

	sqlDB, err := sql.Open("sqlite", cfg.SQLiteDSN)
	if err != nil {
		log.Error("open sqlite", "error", err.Error())
		os.Exit(1)
	}
	defer sqlDB.Close()
	db := squealx.NewDb(sqlDB, "sqlite", "accessctl")
	if err := stores.Migrate(db); err != nil {
		log.Error("migrate", "error", err.Error())
		os.Exit(1)
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			auditq.QueueAudit: 1,
		},
	})
	mux := asynq.NewServeMux()
	auditq.NewHandler(stores.NewSQLAuditStore(db)).Register(mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(mux)
	}()
	log.Info("audit worker started", "redis", cfg.RedisAddr, "concurrency", cfg.Concurrency)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		srv.Shutdown()
	case err := <-errCh:
		if err != nil {
			log.Error("worker run", "error", err.Error())
			os.Exit(1)
		}
	}
}
