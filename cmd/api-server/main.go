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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/doctor-availability-scheduling/internal/api"
	"github.com/hackgods/doctor-availability-scheduling/internal/config"
	"github.com/hackgods/doctor-availability-scheduling/internal/db"
	"github.com/hackgods/doctor-availability-scheduling/internal/logging"
	redisclient "github.com/hackgods/doctor-availability-scheduling/internal/redis"
	"github.com/hackgods/doctor-availability-scheduling/internal/scheduling"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "api-server",
		Short: "Doctor availability and slot booking API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var demoDoctors, demoPatients int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			logger := logging.New(cfg.Env, cfg.LogLevel)
			return runServer(cfg, logger, demoDoctors, demoPatients)
		},
	}
	cmd.Flags().IntVar(&demoDoctors, "demo-doctors", 2, "doctors to register when STORE=memory")
	cmd.Flags().IntVar(&demoPatients, "demo-patients", 5, "patients to register when STORE=memory")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load error: %w", err)
			}
			if cfg.Store != config.StorePostgres {
				return errors.New("migrate requires STORE=postgres")
			}
			logger := logging.New(cfg.Env, cfg.LogLevel)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("postgres connection error: %w", err)
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info().Ints("versions", applied).Msgf("applied %d migration(s)", len(applied))
			return nil
		},
	}
}

func runServer(cfg config.Config, logger zerolog.Logger, demoDoctors, demoPatients int) error {
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.Store).
		Dur("slot_duration", cfg.SlotDuration).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		repo   scheduling.Repository
		checks []api.HealthCheck
		opts   []scheduling.Option
	)

	switch cfg.Store {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
		cancelPg()
		if err != nil {
			return fmt.Errorf("postgres connection error: %w", err)
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		repo = scheduling.NewPgRepository(pgPool)
		checks = append(checks, postgresCheck(pgPool))
	default:
		mem := scheduling.NewMemRepository()
		registerDemoUsers(mem, logger, demoDoctors, demoPatients)
		repo = mem
	}

	if cfg.CacheEnabled && cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			// the cache is optional; serve straight from the store
			logger.Warn().Err(err).Msg("redis unavailable, availability cache disabled")
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing redis")
				}
			}()
			logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

			cache := redisclient.NewAvailabilityCache(rdb, cfg.CacheTTL)
			opts = append(opts, scheduling.WithCache(cache))
			checks = append(checks, api.HealthCheck{Name: "redis", Ping: cache.Ping})
		}
	}

	svc := scheduling.NewService(repo, cfg, logger, opts...)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Logger:         logger,
		Auth:           api.NewAuthenticator(cfg.JWTSecret, cfg.IsDev()),
		HealthChecks:   checks,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	case <-rootCtx.Done():
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func postgresCheck(pool *pgxpool.Pool) api.HealthCheck {
	return api.HealthCheck{Name: "postgres", Critical: true, Ping: pool.Ping}
}

// registerDemoUsers fills the in-memory directory so the API is usable
// without a database.
func registerDemoUsers(repo *scheduling.MemRepository, logger zerolog.Logger, doctors, patients int) {
	for i := 0; i < doctors; i++ {
		id := uuid.New()
		repo.AddDoctor(id)
		logger.Info().Str("doctor_id", id.String()).Msg("registered demo doctor")
	}
	for i := 0; i < patients; i++ {
		id := uuid.New()
		repo.AddPatient(id)
		logger.Info().Str("patient_id", id.String()).Msg("registered demo patient")
	}
}
