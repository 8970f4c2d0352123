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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/susutoys/storefront/cartstore"
	"github.com/susutoys/storefront/cartview"
	"github.com/susutoys/storefront/checkout"
	"github.com/susutoys/storefront/config"
	"github.com/susutoys/storefront/events"
	"github.com/susutoys/storefront/render"
)

const ShutdownGrace = 10 * time.Second

func main() {
	cfg := config.Load()
	log := cfg.Logger(os.Stdout)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("store", cfg.StoreBackend).
		Str("events", cfg.EventsBackend).
		Msg("starting storefront cart")

	kv, closeKV, err := openKV(cfg)
	if err != nil {
		return fmt.Errorf("cart store: %w", err)
	}
	defer closeKV()

	pub, err := openPublisher(cfg, log)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer pub.Close()

	renderer, err := render.New(log)
	if err != nil {
		return err
	}

	store := cartstore.New(kv, log)
	srv, err := NewServer(cfg, log, store, cartview.Deps{
		Renderer:  renderer,
		Scheduler: checkout.TimeScheduler{},
		Publisher: pub,
		Checkout:  cfg.Checkout,
		Log:       log,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Señales para apagado limpio
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Warn().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openKV(cfg config.Config) (cartstore.KV, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return cartstore.NewMemoryKV(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return cartstore.NewRedisKV(client, cfg.RedisTTL), func() { _ = client.Close() }, nil
	case "sqlite", "":
		db, err := cartstore.OpenSQLite(cfg.SQLiteDriver, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := cartstore.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return cartstore.NewSQLiteKV(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown CART_STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func openPublisher(cfg config.Config, log zerolog.Logger) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case "none", "":
		return events.Nop{}, nil
	case "rabbit":
		r, err := events.NewRabbit(cfg.RabbitURL, cfg.Exchange)
		if err != nil {
			return nil, err
		}
		return events.NewBreaker(r, "rabbit", log), nil
	case "kafka":
		return events.NewBreaker(events.NewKafka(cfg.KafkaTopic, cfg.KafkaBrokers...), "kafka", log), nil
	default:
		return nil, fmt.Errorf("unknown EVENTS_BACKEND %q", cfg.EventsBackend)
	}
}
