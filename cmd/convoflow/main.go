package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	app "github.com/convoflow/engine"
	"github.com/convoflow/engine/internal/arbiter"
	"github.com/convoflow/engine/internal/checkpoint"
	"github.com/convoflow/engine/internal/config"
	"github.com/convoflow/engine/internal/engine"
	"github.com/convoflow/engine/internal/events"
	"github.com/convoflow/engine/internal/flows"
	"github.com/convoflow/engine/internal/model"
	"github.com/convoflow/engine/internal/records"
	"github.com/convoflow/engine/internal/server"
	"github.com/convoflow/engine/pkg/log"
)

type convoflow struct {
	cfg        *config.Config
	redis      *redis.Client
	records    *records.Store
	hub        *events.Hub
	engine     *engine.Engine
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrConnectRedis = errors.New("failed to connect to redis")
	ErrOpenRecords  = errors.New("failed to open records store")
	ErrBuildFlow    = errors.New("failed to build flow graph")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	_ = godotenv.Load()

	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &convoflow{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *convoflow) run() error {
	if err := s.initializeStores(); err != nil {
		return err
	}

	if err := s.initializeEngine(); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *convoflow) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Convoflow Engine starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("redis_addr", s.cfg.Redis.Addr),
		slog.Int("redis_db", s.cfg.Redis.DB),
		slog.String("records_url", s.cfg.RecordsURL),
		slog.String("model_endpoint", s.cfg.ModelEndpoint),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *convoflow) initializeStores() error {
	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectRedis, err)
	}

	recs, err := records.Open(ctx, s.cfg.RecordsURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenRecords, err)
	}
	s.records = recs
	s.hub = events.NewHub()
	return nil
}

func (s *convoflow) initializeEngine() error {
	g, err := flows.NewContactCenter(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFlow, err)
	}

	eng, err := engine.New(s.cfg, engine.Dependencies{
		Graph: g,
		Checkpoints: checkpoint.New(
			s.redis, s.cfg.Redis.Prefix, s.cfg.CheckpointTTL,
		),
		Arbiter: arbiter.New(s.redis, s.cfg.Redis.Prefix),
		Model: model.NewHTTPClient(
			s.cfg.ModelEndpoint, s.cfg.CallTimeout,
		),
		Records: s.records,
		Hub:     s.hub,
	})
	if err != nil {
		return err
	}
	s.engine = eng

	slog.Info("Engine initialized",
		slog.String("executor_id", s.engine.ExecutorID()))
	return nil
}

func (s *convoflow) startServer() {
	s.apiServer = server.NewServer(s.engine, s.hub)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *convoflow) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()

	if err := s.records.Close(); err != nil {
		slog.Error("Records store close failed", log.Error(err))
	}
	_ = s.redis.Close()

	slog.Info("Server exited")
}
