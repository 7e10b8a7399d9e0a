package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/catering/internal/catalog"
	"github.com/kiwari-pos/catering/internal/config"
	"github.com/kiwari-pos/catering/internal/database"
	"github.com/kiwari-pos/catering/internal/logger"
	"github.com/kiwari-pos/catering/internal/messaging"
	"github.com/kiwari-pos/catering/internal/pricing"
	"github.com/kiwari-pos/catering/internal/router"
	"github.com/kiwari-pos/catering/internal/service"
	"github.com/kiwari-pos/catering/internal/session"
	"github.com/kiwari-pos/catering/internal/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Postgres
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("ping database", zap.Error(err))
	}
	queries := database.New(pool)

	// Flow persistence
	var store session.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("ping redis", zap.Error(err))
		}
		store = session.NewRedisStore(rdb)
		log.Info("flows persisted to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Order events
	var publisher service.Publisher
	if cfg.AMQPURL != "" {
		p, err := messaging.Dial(cfg.AMQPURL, log)
		if err != nil {
			log.Fatal("connect to rabbitmq", zap.Error(err))
		}
		defer p.Close()
		publisher = p
	}

	var names *pricing.NameTable
	if len(cfg.LegacyPrices) > 0 {
		names = pricing.NewNameTable(cfg.LegacyPrices, cfg.FallbackPrice)
		log.Info("legacy name pricing enabled", zap.Int("entries", len(cfg.LegacyPrices)))
	}

	cat := catalog.New(queries)
	flows := session.NewRegistry(cat, session.Options{
		Fees:      pricing.NewFeeSchedule(cfg.DeliveryFees, cfg.DefaultDeliveryFee),
		NameTable: names,
		Store:     store,
		TTL:       cfg.SessionTTL,
		Logger:    log,
	})
	go flows.Run(ctx, time.Minute)

	hub := ws.NewHub()
	go hub.Run(ctx)

	r := router.New(cfg, router.Deps{
		Queries:   queries,
		Pool:      pool,
		DB:        pool,
		Catalog:   cat,
		Flows:     flows,
		Hub:       hub,
		Publisher: publisher,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
