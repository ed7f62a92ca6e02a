// Command server starts the ChildService API HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"childservice/internal/api"
	"childservice/internal/observability/logging"
	"childservice/internal/observability/metrics"
	"childservice/internal/server"
	"childservice/internal/storage"
)

const defaultListenAddr = ":2137"

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to the JSON snapshot file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	sweepInterval := flag.Duration("sweep-interval", 0, "interval between dead listener sweeps")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisAddrs := flag.String("rate-redis-addrs", "", "comma separated Redis addresses for distributed login throttling")
	redisUsername := flag.String("rate-redis-username", "", "Redis username for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisMasterName := flag.String("rate-redis-master-name", "", "Redis sentinel master name for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	redisTLSCA := flag.String("rate-redis-tls-ca", "", "path to Redis TLS CA certificate")
	redisTLSCert := flag.String("rate-redis-tls-cert", "", "path to Redis TLS client certificate")
	redisTLSKey := flag.String("rate-redis-tls-key", "", "path to Redis TLS client key")
	redisTLSServerName := flag.String("rate-redis-tls-server-name", "", "override Redis TLS server name")
	redisTLSSkipVerify := flag.Bool("rate-redis-tls-skip-verify", false, "skip Redis TLS verification")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("CHILD_SERVICE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("CHILD_SERVICE_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("CHILD_SERVICE_ADDR"), defaultListenAddr)

	dataFile := firstNonEmpty(*dataPath, os.Getenv("CHILD_SERVICE_DATA"))
	if dataFile == "" {
		resolved, err := storage.DefaultSnapshotPath()
		if err != nil {
			logger.Error("failed to resolve snapshot path", "error", err)
			os.Exit(1)
		}
		dataFile = resolved
	}

	store, err := storage.NewStore(dataFile, storage.WithLogger(logging.WithComponent(logger, "storage")))
	if err != nil {
		logger.Error("failed to open snapshot", "path", dataFile, "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, logging.WithComponent(logger, "api"))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	sweepStop := startListenerSweepWorker(
		workerCtx,
		logging.WithComponent(logger, "listener-sweeper"),
		store,
		resolveDuration(*sweepInterval, "CHILD_SERVICE_SWEEP_INTERVAL", 15*time.Second),
	)
	defer sweepStop()

	rateCfg := server.RateLimitConfig{
		GlobalRPS:   resolveFloat(*globalRPS, "CHILD_SERVICE_RATE_GLOBAL_RPS"),
		GlobalBurst: resolveInt(*globalBurst, "CHILD_SERVICE_RATE_GLOBAL_BURST"),
		LoginLimit:  resolveInt(*loginLimit, "CHILD_SERVICE_RATE_LOGIN_LIMIT"),
		LoginWindow: resolveDuration(*loginWindow, "CHILD_SERVICE_RATE_LOGIN_WINDOW", time.Minute),
		Redis: server.RedisConfig{
			Addr:       firstNonEmpty(*redisAddr, os.Getenv("CHILD_SERVICE_RATE_REDIS_ADDR")),
			Addrs:      splitAndTrim(firstNonEmpty(*redisAddrs, os.Getenv("CHILD_SERVICE_RATE_REDIS_ADDRS"))),
			Username:   firstNonEmpty(*redisUsername, os.Getenv("CHILD_SERVICE_RATE_REDIS_USERNAME")),
			Password:   firstNonEmpty(*redisPassword, os.Getenv("CHILD_SERVICE_RATE_REDIS_PASSWORD")),
			MasterName: firstNonEmpty(*redisMasterName, os.Getenv("CHILD_SERVICE_RATE_REDIS_MASTER_NAME")),
			Timeout:    resolveDuration(*redisTimeout, "CHILD_SERVICE_RATE_REDIS_TIMEOUT", 2*time.Second),
			TLS: server.RedisTLSConfig{
				CAFile:             firstNonEmpty(*redisTLSCA, os.Getenv("CHILD_SERVICE_RATE_REDIS_TLS_CA")),
				CertFile:           firstNonEmpty(*redisTLSCert, os.Getenv("CHILD_SERVICE_RATE_REDIS_TLS_CERT")),
				KeyFile:            firstNonEmpty(*redisTLSKey, os.Getenv("CHILD_SERVICE_RATE_REDIS_TLS_KEY")),
				ServerName:         firstNonEmpty(*redisTLSServerName, os.Getenv("CHILD_SERVICE_RATE_REDIS_TLS_SERVER_NAME")),
				InsecureSkipVerify: resolveBool(*redisTLSSkipVerify, "CHILD_SERVICE_RATE_REDIS_TLS_SKIP_VERIFY"),
			},
		},
	}

	srv, err := server.New(handler, server.Config{
		Addr:      listenAddr,
		RateLimit: rateCfg,
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("CHILD_SERVICE_CORS_ORIGINS"))),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("ChildService API listening", "addr", listenAddr, "data", dataFile)
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sweepStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	store.Save()
	logger.Info("server stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
