package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/chatstack/go-chathub/internal/api"
	"github.com/chatstack/go-chathub/internal/auth"
	"github.com/chatstack/go-chathub/internal/chat"
	"github.com/chatstack/go-chathub/internal/config"
	"github.com/chatstack/go-chathub/internal/database"
	"github.com/chatstack/go-chathub/internal/rpc"
	"github.com/chatstack/go-chathub/internal/server"
	"github.com/chatstack/go-chathub/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	addr           string
	rpcAddr        string
	dsn            string
	authAddr       string
	userAddr       string
	redisAddr      string
	redisPassword  string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	// A missing .env is fine, env vars and flags still apply.
	godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("SERVER_ADDR", "localhost:8000"), "HTTP server address")
	flag.StringVar(&rpcAddr, "rpc-addr", envOr("RPC_ADDR", "localhost:8010"), "RPC listener address")
	flag.StringVar(&dsn, "dsn", envOr("DATABASE_DSN",
		"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&authAddr, "auth-addr", envOr("AUTH_SERVICE_ADDR", ""), "auth service address (empty for local validation)")
	flag.StringVar(&userAddr, "user-addr", envOr("USER_SERVICE_ADDR", ""), "user service address (empty for local lookups)")
	flag.StringVar(&redisAddr, "redis-addr", envOr("REDIS_ADDR", ""), "redis address for shared rate limiting")
	flag.StringVar(&redisPassword, "redis-password", envOr("REDIS_PASSWORD", ""), "redis password")
	flag.StringVar(&signingKey, "signing-key", envOr("SIGNING_KEY", ""), "base64 encoded signing key for local token validation")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[chathub] ", log.LstdFlags)

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:      addr,
		RPCAddr:         rpcAddr,
		DatabaseDSN:     dsn,
		AuthServiceAddr: authAddr,
		UserServiceAddr: userAddr,
		RedisAddr:       redisAddr,
		RedisPassword:   redisPassword,
		Base64Secret:    signingKey,
		AllowedOrigins:  allowedOrigins,
	})
	if err != nil {
		logger.Fatal("config: ", err)
	}

	db, err := database.NewPgChatRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	breakerOpts := rpc.BreakerOptions{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		CallTimeout:      cfg.BreakerCallTimeout,
		ResetTimeout:     cfg.BreakerResetTimeout,
	}

	var (
		validator auth.TokenValidator
		directory chat.UserDirectory
		monitored []*rpc.Client
	)

	if cfg.AuthServiceAddr != "" {
		authClient := rpc.NewClient("auth-service", cfg.AuthServiceAddr, rpc.NewBreaker(breakerOpts), logger)
		validator = auth.NewRPCValidator(authClient)
		monitored = append(monitored, authClient)
	} else {
		validator = auth.NewLocalValidator(cfg.SigningKey)
	}

	if cfg.UserServiceAddr != "" {
		userClient := rpc.NewClient("user-service", cfg.UserServiceAddr, rpc.NewBreaker(breakerOpts), logger)
		directory = chat.NewRPCDirectory(userClient)
		monitored = append(monitored, userClient)
	} else {
		directory = chat.NewRepositoryDirectory(db)
	}

	monitor := rpc.NewHealthMonitor(logger, cfg.HealthInterval, cfg.BreakerCallTimeout, monitored...)
	go monitor.Run()
	defer monitor.Stop()

	var limiter server.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		limiter = server.NewRedisRateLimiter(rdb, cfg.MessageRateLimit, cfg.MessageRateWindow, logger)
	} else {
		limiter = server.NewLocalRateLimiter(cfg.MessageRateLimit, cfg.MessageRateWindow)
	}

	coordinator := chat.NewCoordinator(logger, db, directory)

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	gateway := server.NewGateway(logger, coordinator, validator, limiter, statsUpdater, cfg.AllowedOrigins)

	app := api.NewChatApp(mux, logger, gateway, monitor, cfg)

	rpcServer := rpc.NewServer(logger, cfg.RPCAddr)
	api.NewChatAPI(logger, coordinator).Register(rpcServer)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go gateway.Run()

	errCh := make(chan error, 2)
	go func() {
		errCh <- app.Start()
	}()
	go func() {
		errCh <- rpcServer.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	if err := rpcServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("RPC server shutdown:", err)
	}

	logger.Println("shutting down gateway...")
	gateway.Shutdown()

	logger.Println("shutdown complete")
}
