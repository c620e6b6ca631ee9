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
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Hoang105205/Event-Ticket-Platform/internal/config"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/kafkax"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/logger"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/outbox"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/storage/postgres"
	transporthttp "github.com/Hoang105205/Event-Ticket-Platform/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "outbox-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr, envFile string
	flagSet := pflag.NewFlagSet("outbox-relay", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "", "metrics listen address (overrides METRICS_ADDR)")
	flagSet.StringVar(&envFile, "env-file", "", "path to a .env file (default: nearest .env)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.MetricsAddr = addr
	}
	if cfg.StorageDriver != config.StoragePostgres {
		return fmt.Errorf("outbox relay needs the postgres driver, got %q", cfg.StorageDriver)
	}

	log := logger.New("outbox-relay", cfg.AppEnv)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := pgxpool.NewWithConfig(startCtx, poolCfg)
	if err == nil {
		err = pool.Ping(startCtx)
	}
	cancel()
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	producer, err := kafkax.NewProducer(kafkax.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		ClientID: "ticketing-outbox-relay",
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Warn("kafka_close_failed", "err", err.Error())
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	relay := outbox.NewRelay(postgres.NewOutboxRepository(pool), producer, log,
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithProcessingTimeout(cfg.OutboxProcessingTimeout),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/ready", transporthttp.ReadyHandler(pool.Ping))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("outbox_relay_started",
			"topic", cfg.KafkaTopic,
			"batch_size", cfg.OutboxBatchSize,
			"poll_interval", cfg.OutboxPollInterval.String(),
		)
		return relay.Run(gctx, cfg.OutboxPollInterval)
	})
	g.Go(func() error {
		log.Info("metrics_listening", "addr", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("outbox_relay_stopped")
	return nil
}
