package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antonminaichev/agroconnect/internal/cache"
	"github.com/antonminaichev/agroconnect/internal/crop"
	"github.com/antonminaichev/agroconnect/internal/events"
	"github.com/antonminaichev/agroconnect/internal/logger"
	"github.com/antonminaichev/agroconnect/internal/middleware"
	"github.com/antonminaichev/agroconnect/internal/order"
	"github.com/antonminaichev/agroconnect/internal/router"
	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/storage/memory"
	"github.com/antonminaichev/agroconnect/internal/storage/postgres"
	ordertypes "github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/antonminaichev/agroconnect/internal/user"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Fatal("server failed", zap.Error(err))
	}
}

type publisher interface {
	order.EventPublisher
	Close() error
}

func openStorage(cfg *Config) (storage.Storage, error) {
	if cfg.DatabaseConnection == "" {
		logger.Log.Warn("DATABASE_URI is empty, using in-memory storage")
		return memory.New(), nil
	}
	return postgres.NewPostgresStorage(cfg.DatabaseConnection)
}

func openPublisher(cfg *Config) (publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}, nil
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaTimeout)
}

func run() error {
	cfg, err := NewConfig(os.Args[1:])
	if err != nil {
		return err
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Log.Sync()

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(ctx)
	cancel()
	if err != nil {
		return err
	}

	pub, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()

	auth := middleware.NewAuthenticator([]byte(cfg.JWTSecret), store)
	versions := cache.NewVersions()
	listings := cache.NewListing[ordertypes.Page[ordertypes.FarmerOrderItem]](cfg.ListingCacheSize, cfg.ListingCacheTTL)

	userHandler := user.NewHandler(user.NewService(store, []byte(cfg.JWTSecret), cfg.JWTTTL))
	cropHandler := crop.NewHandler(crop.NewService(store, versions))
	orderSvc := order.NewService(store, versions, listings, pub)
	streamer := order.NewStreamer(versions, cfg.StreamInterval)
	orderHandler := order.NewHandler(orderSvc, streamer, auth)

	r := router.NewRouter(userHandler, cropHandler, orderHandler, auth, cfg.CORSOrigins)

	// no WriteTimeout: the order stream is long-lived
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown waits for active requests, so open streams are told to finish
	srv.RegisterOnShutdown(streamer.Close)

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	logger.Log.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Log.Warn("server forced to shutdown", zap.Error(err))
		return srv.Close()
	}

	logger.Log.Info("server stopped gracefully")
	return nil
}
