package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossy-p/webrtc-gateway/config"
	"github.com/mossy-p/webrtc-gateway/internal/dtls"
	"github.com/mossy-p/webrtc-gateway/internal/gateway"
	"github.com/mossy-p/webrtc-gateway/internal/handlers"
	"github.com/mossy-p/webrtc-gateway/internal/observability"
	"github.com/mossy-p/webrtc-gateway/internal/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	loggerFactory := newLoggerFactory(cfg.LogLevel)
	log := loggerFactory.NewLogger("main")

	if err := run(cfg, loggerFactory, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, loggerFactory logging.LoggerFactory, log logging.LeveledLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One certificate for the whole process; its fingerprint goes into
	// every answer.
	cert, err := dtls.GenerateCertificate()
	if err != nil {
		return err
	}
	log.Infof("DTLS certificate fingerprint sha-256 %s", cert.Fingerprint)

	var store gateway.Store
	if cfg.Redis.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisStore, err := redis.Connect(connectCtx, cfg.Redis, loggerFactory)
		cancel()
		if err != nil {
			return err
		}
		defer redisStore.Close()

		log.Info("Redis connection established")
		store = redisStore
	} else {
		log.Warn("Redis disabled, session records are kept in memory")
		store = gateway.NewMemoryStore(cfg.Redis.SessionTTL)
	}

	var metrics http.Handler
	if cfg.MetricsEnabled {
		observability.MustRegister()
		metrics = promhttp.Handler()
	}

	node, _ := os.Hostname()
	manager := gateway.NewManager(gateway.ManagerConfig{
		Certificate:   cert,
		NewAgent:      gateway.NewICEAgentFactory(cfg.STUNURL, loggerFactory),
		Store:         store,
		Node:          node,
		LoggerFactory: loggerFactory,
	})

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		AdminUsers:     cfg.AdminUsers,
		RequireAuth:    cfg.RequireAuth,
		Sessions:       manager,
		Metrics:        metrics,
		LoggerFactory:  loggerFactory,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting WebRTC gateway on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Infof("Shutting down, stopping %d sessions", manager.Len())

	// Hijacked WebSocket connections are not tracked by Shutdown.
	manager.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLoggerFactory(level string) *logging.DefaultLoggerFactory {
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = parseLogLevel(level)
	return factory
}

func parseLogLevel(level string) logging.LogLevel {
	switch level {
	case "disabled", "off":
		return logging.LogLevelDisabled
	case "error":
		return logging.LogLevelError
	case "warn", "warning":
		return logging.LogLevelWarn
	case "debug":
		return logging.LogLevelDebug
	case "trace":
		return logging.LogLevelTrace
	default:
		return logging.LogLevelInfo
	}
}
