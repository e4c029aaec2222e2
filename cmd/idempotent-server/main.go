// The idempotent payments demo server. make_payment is guarded by
// idempotency keys: a retried call with the same key replays the original
// outcome instead of debiting again.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/idempay/idempay/config"
	"github.com/idempay/idempay/idempotency"
	"github.com/idempay/idempay/ledger"
	paymcp "github.com/idempay/idempay/mcp"
	ginmcp "github.com/idempay/idempay/pkg/gin"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.Format == "json" {
		logger, _ = zap.NewProduction()
	} else {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	bank := ledger.New()
	for _, acct := range cfg.Accounts {
		id, err := uuid.Parse(acct.ID)
		if err != nil {
			logger.Fatal("invalid account id in config", zap.String("id", acct.ID), zap.Error(err))
		}
		if err := bank.OpenAccount(id, acct.OpeningMinorUnits); err != nil {
			logger.Fatal("failed to open account", zap.String("id", acct.ID), zap.Error(err))
		}
	}

	var store idempotency.RecordStore
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		store = idempotency.NewRedisStore(client, cfg.Store.TTL)
		logger.Info("using Redis record store", zap.String("addr", cfg.Redis.Addr))
	default:
		var opts []idempotency.StoreOption
		if cfg.Store.TTL > 0 {
			opts = append(opts, idempotency.WithTTL(cfg.Store.TTL))
		}
		store = idempotency.NewInMemoryStore(opts...)
		logger.Info("using in-memory record store")
	}

	executor := idempotency.NewExecutor(store, idempotency.WithLogger(logger))

	service := paymcp.NewService(bank,
		paymcp.WithExecutor(executor),
		paymcp.WithLogger(logger),
		paymcp.WithSettleDelay(cfg.Demo.SettleDelay),
	)

	mcpServer := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "Idempotent Payments Demo",
		Version: "1.0.0",
	}, nil)
	service.Register(mcpServer)

	router := ginmcp.NewRouter(logger, mcpServer, ginmcp.WithServerName("idempotent-payments"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("endpoint", ginmcp.MCPEndpoint))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
