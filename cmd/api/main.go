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

	"github.com/Hoang105205/Event-Ticket-Platform/internal/accesscode"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/app"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/audit"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/clock"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/config"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/logger"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/storage/memory"
	"github.com/Hoang105205/Event-Ticket-Platform/internal/storage/postgres"
	transporthttp "github.com/Hoang105205/Event-Ticket-Platform/internal/transport/http"
	"github.com/Hoang105205/Event-Ticket-Platform/migrations"
)

const startupTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr, envFile, storage string
	flagSet := pflag.NewFlagSet("api", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	flagSet.StringVar(&envFile, "env-file", "", "path to a .env file (default: nearest .env)")
	flagSet.StringVar(&storage, "storage", "", "storage driver: postgres or memory (overrides STORAGE_DRIVER)")
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
		cfg.HTTPAddr = addr
	}
	if storage != "" {
		cfg.StorageDriver = storage
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	log := logger.New("api", cfg.AppEnv)
	slog.SetDefault(log)
	if cfg.EnvFile != "" {
		log.Info("env_loaded", "path", cfg.EnvFile)
	}
	if cfg.IsProduction() && (cfg.AccessCodeSecret == "" || cfg.AuditKey == "") {
		return errors.New("ACCESS_CODE_SECRET and AUDIT_KEY are required in production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := app.NewMetrics(reg)

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	auditKey, err := audit.ParseKey(cfg.AuditKey)
	if err != nil {
		return err
	}
	chain, err := audit.New(auditKey)
	if err != nil {
		return err
	}
	if cfg.AuditKey == "" {
		log.Warn("audit_key_unset", "detail", "validation trail uses the built-in key")
	}

	signer := accesscode.NewSigner(cfg.AccessCodeSecret)
	var resolver accesscode.Resolver = accesscode.NewStoreResolver(st.codes)
	issuanceOpts := []app.IssuanceServiceOption{app.WithIssuanceMetrics(appMetrics)}
	if cfg.RedisURL != "" {
		startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		client, err := accesscode.NewRedisClient(startCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			return err
		}
		defer client.Close()
		cached := accesscode.NewCachedResolver(client, resolver, cfg.AccessCodeCacheTTL, log)
		resolver = cached
		issuanceOpts = append(issuanceOpts, app.WithAccessCodeCache(cached))
		log.Info("access_code_cache_enabled", "ttl", cfg.AccessCodeCacheTTL.String())
	}
	resolver = accesscode.NewSignedResolver(signer, resolver)

	clk := clock.NewSystem()
	issuance := app.NewIssuanceService(st.tickets, clk, issuanceOpts...)
	handler := transporthttp.NewRouter(transporthttp.Services{
		Admin:     app.NewAdminService(st.admin, clk),
		Purchaser: app.NewLedgerService(st.ledger, issuance, clk, app.WithLedgerMetrics(appMetrics)),
		Tickets:   issuance,
		Validator: app.NewValidationService(st.validations, resolver, chain, clk, app.WithValidationMetrics(appMetrics)),
		Signer:    signer,
		Ready:     st.ready,
	}, transporthttp.RouterConfig{
		Logger:         log,
		Metrics:        transporthttp.NewMetrics(reg),
		CORSOrigins:    cfg.CORSOrigins,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api_listening", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("api_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("api_stopped")
	return nil
}

// stores groups the repositories of one storage driver.
type stores struct {
	admin       app.AdminRepository
	ledger      app.LedgerRepository
	tickets     app.TicketRepository
	validations app.ValidationRepository
	codes       accesscode.Lookup
	ready       func(ctx context.Context) error
	close       func()
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("memory_storage", "detail", "state is lost on restart and the outbox is never relayed")
		st := memory.New(memory.WithLockTimeout(cfg.LockTimeout))
		return stores{
			admin:       st,
			ledger:      st,
			tickets:     st,
			validations: st,
			codes:       st,
			close:       func() {},
		}, nil
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	pool, err := pgxpool.NewWithConfig(startCtx, poolCfg)
	if err != nil {
		return stores{}, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startCtx); err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("db ping: %w", err)
	}
	applied, err := migrations.Apply(startCtx, pool)
	if err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("migrations_applied", "count", len(applied))

	opt := postgres.WithLockTimeout(cfg.LockTimeout)
	tickets := postgres.NewTicketRepository(pool, opt)
	return stores{
		admin:       postgres.NewAdminRepository(pool, opt),
		ledger:      postgres.NewLedgerRepository(pool, opt),
		tickets:     tickets,
		validations: postgres.NewValidationRepository(pool, opt),
		codes:       tickets,
		ready:       pool.Ping,
		close:       pool.Close,
	}, nil
}
