package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-slopetrack/internal/config"
	"backend-slopetrack/internal/db"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() (config.Config, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	migrate         func(context.Context, db.Querier) error
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc, logrus.FieldLogger) error
	log             *logrus.Logger
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: config.Load,
		connectPostgres: func(cfg config.Config) (*pgxpool.Pool, error) {
			return db.ConnectPostgres(cfg.PostgresURL)
		},
		connectRedis: func(cfg config.Config) *redis.Client {
			return db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
		},
		migrate: db.Migrate,
		notify:  signal.Notify,
		run:     Run,
	}
}

func realMain(deps mainDeps) {
	cfg, err := deps.loadConfig()
	log := deps.log
	if log == nil {
		log = logging.New(cfg.LogLevel)
	}
	if err != nil {
		log.WithError(err).Error("config load failed")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid config")
		return
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.WithError(err).Warn("postgres connection failed")
		pg = nil
	}
	if pg != nil {
		if err := deps.migrate(context.Background(), pg); err != nil {
			log.WithError(err).Error("migration failed")
		}
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil, log); err != nil {
		log.WithError(err).Error("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals. A nil log
// gets a logger at cfg.LogLevel.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc, log logrus.FieldLogger) error {
	if log == nil {
		log = logging.New(cfg.LogLevel)
	}
	srv := server.NewServer(cfg, pg, rdb, log)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = srv.Close()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if err := srv.Close(); err != nil {
		log.WithError(err).Warn("close run store")
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("server stopped")
	return nil
}
