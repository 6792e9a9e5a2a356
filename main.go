package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryan-buckman/grainotheque/internal/catalog"
	"github.com/bryan-buckman/grainotheque/internal/config"
	"github.com/bryan-buckman/grainotheque/internal/database"
	"github.com/bryan-buckman/grainotheque/internal/datasource"
	"github.com/bryan-buckman/grainotheque/internal/logging"
	"github.com/bryan-buckman/grainotheque/internal/payment"
	"github.com/bryan-buckman/grainotheque/internal/rss"
	"github.com/bryan-buckman/grainotheque/internal/server"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file loaded: %v", err)
	}

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ds, closer, err := openDataSource(cfg, logger)
	if err != nil {
		logger.Fatal("open data source", zap.Error(err))
	}
	defer closer.Close()

	var payments payment.Provider
	if cfg.PaymentsEnabled() {
		payments = payment.NewStripe(cfg.StripeSecretKey, cfg.StripePublishableKey, cfg.PaymentCurrency, nil, logger)
		logger.Info("stripe payments enabled", zap.String("currency", cfg.PaymentCurrency))
	}

	fetcher := rss.NewFetcher(ds, logger)
	srv, err := server.New(server.Options{
		DataSource:         ds,
		Payments:           payments,
		Fetcher:            fetcher,
		Logger:             logger,
		FeaturedCount:      cfg.FeaturedCount,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedOrigins:     cfg.AllowedOrigins(),
		SecureCookies:      cfg.IsProduction(),
		TrustProxy:         cfg.TrustProxy,
		ImportFeeds:        cfg.Feeds(),
		ImportToken:        cfg.ImportToken,
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	var poller *rss.Poller
	if feeds := cfg.Feeds(); len(feeds) > 0 {
		poller = rss.NewPoller(fetcher, feeds, cfg.ImportIntervalMinutes)
		poller.Start()
		logger.Info("feed import enabled", zap.Int("feeds", len(feeds)), zap.Duration("interval", poller.Interval()))
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr), zap.String("data_source", ds.Name()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("server is shutting down")

	if poller != nil {
		poller.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// openDataSource picks the remote source when DATABASE_URL is set and a
// local KV-backed catalog otherwise. The returned closer releases the backend.
func openDataSource(cfg *config.Config, logger *zap.Logger) (datasource.DataSource, io.Closer, error) {
	if cfg.Remote() {
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return datasource.NewRemote(db, logger), db, nil
	}

	var kv database.KV
	switch cfg.StoreBackend {
	case config.BackendRedis:
		r, err := database.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		kv = r
	case config.BackendMemory:
		kv = database.NewMemory()
	default:
		db, err := database.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		kv = db
	}
	logger.Info("local storage", zap.String("backend", kv.Backend()), zap.String("key", cfg.StorageKey))

	store := catalog.New(kv, cfg.StorageKey, catalog.Seed(time.Now()), logger)
	return datasource.NewLocal(store), kv, nil
}
