package server

import (
	"backend-slopetrack/internal/auth"
	"backend-slopetrack/internal/config"
	"backend-slopetrack/internal/db"
	"backend-slopetrack/internal/logging"
	"backend-slopetrack/internal/runs"
	"backend-slopetrack/internal/stream"
	"backend-slopetrack/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type runStore interface {
	tracking.RunSaver
	runs.Reader
}

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Tracking *tracking.Service
	Runs     runStore
	Log      logrus.FieldLogger

	sqlite *runs.SQLiteStore
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, log logrus.FieldLogger) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pg,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log),
		Log:    logging.OrNop(log),
	}

	var sessions db.Querier
	switch {
	case pg != nil:
		sessions = pg
		s.Runs = runs.NewPostgresStore(pg)
	case cfg.SQLitePath != "":
		store, err := runs.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			s.Log.WithError(err).Warn("sqlite run store unavailable, runs will not be kept")
			break
		}
		s.sqlite = store
		s.Runs = store
	}

	snapshots := stream.NewSnapshotCache(redisClient, cfg.SnapshotTTL)
	s.Tracking = tracking.NewService(sessions, s.Runs, s.Stream, snapshots, cfg.Pipeline(), s.Log)

	registerRoutes(s, snapshots)
	return s
}

func registerRoutes(s *Server, snapshots *stream.SnapshotCache) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "ok",
			"postgres":        s.DB != nil,
			"redis":           s.Redis != nil,
			"run_store":       s.Runs != nil,
			"active_sessions": len(s.Tracking.Active()),
		})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), s.Cfg.JWTSecret, s.Cfg.ProvisioningKey)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	if s.Runs != nil {
		runs.RegisterRoutes(s.App.Group("/runs"), s.Runs)
	} else {
		s.App.All("/runs/*", func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusServiceUnavailable, "run storage not configured")
		})
	}
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, snapshots)
}

// Close stops the live hub and releases the local run store.
func (s *Server) Close() error {
	s.Stream.Close()
	if s.sqlite != nil {
		return s.sqlite.Close()
	}
	return nil
}
