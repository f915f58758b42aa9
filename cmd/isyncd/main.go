package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Keller65/iSync-sub000/internal/cache"
	"github.com/Keller65/iSync-sub000/internal/cart"
	"github.com/Keller65/iSync-sub000/internal/catalog"
	"github.com/Keller65/iSync-sub000/internal/httpapi"
	"github.com/Keller65/iSync-sub000/internal/orders"
	"github.com/Keller65/iSync-sub000/pkg/logger"
)

type Config struct {
	HTTPPort        string
	ERPBaseURL      string
	ERPToken        string
	Tenant          string
	DataDir         string
	MigrationsDir   string
	RedisAddr       string // optional; empty means sqlite-backed cache
	PageSize        int
	TierPricing     bool
	LogLevel        string
	Env             string
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "7411"),
		ERPBaseURL:      getEnv("ERP_BASE_URL", "http://localhost:9000"),
		ERPToken:        getEnv("ERP_TOKEN", ""),
		Tenant:          getEnv("ERP_TENANT", ""),
		DataDir:         getEnv("DATA_DIR", "./data"),
		MigrationsDir:   getEnv("MIGRATIONS_DIR", "./migrations"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		PageSize:        getEnvInt("CATALOG_PAGE_SIZE", 20),
		TierPricing:     getEnv("TIER_PRICING", "true") == "true",
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Env:             getEnv("ENV", "development"),
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	logg := logger.New(logger.Options{
		Service: "isyncd",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
	})

	// Cache storage: sqlite on disk by default so cached catalog pages
	// survive restarts in the field; redis when an address is configured.
	var storage cache.Storage
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis unreachable at %s: %v", cfg.RedisAddr, err)
		}
		storage = cache.NewRedisStorage(client)
		logg.Info("cache storage: redis", "addr", cfg.RedisAddr)
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			log.Fatalf("creating data dir: %v", err)
		}
		sqliteStorage, err := cache.NewSqliteStorage(filepath.Join(cfg.DataDir, "httpcache.db"))
		if err != nil {
			log.Fatalf("opening cache db: %v", err)
		}
		defer sqliteStorage.Close()
		if err := sqliteStorage.RunMigrations(cfg.MigrationsDir); err != nil {
			log.Fatalf("running migrations: %v", err)
		}
		storage = sqliteStorage
		logg.Info("cache storage: sqlite", "dir", cfg.DataDir)
	}

	respCache := cache.New(storage, logg)
	token := func() string { return cfg.ERPToken }

	catalogClient, err := catalog.NewClient(catalog.Config{
		BaseURL: cfg.ERPBaseURL,
		Token:   token,
		Tenant:  cfg.Tenant,
		Cache:   respCache,
		Logger:  logg,
	})
	if err != nil {
		log.Fatalf("catalog client: %v", err)
	}

	submitter, err := orders.NewSubmitter(orders.Config{
		BaseURL: cfg.ERPBaseURL,
		Token:   token,
		Tenant:  cfg.Tenant,
		Logger:  logg,
	})
	if err != nil {
		log.Fatalf("order submitter: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Cart:      cart.NewStore(),
		Catalog:   catalogClient,
		Orders:    submitter,
		Cache:     respCache,
		Logger:    logg,
		PageSize:  cfg.PageSize,
		TierPrice: cfg.TierPricing,
	})

	srv := &http.Server{
		Addr:         "127.0.0.1:" + cfg.HTTPPort,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // exhaustive search can run long
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info("session engine listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	logg.Info("server exited")
}
