package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicflow/scheduler/internal/config"
	"github.com/clinicflow/scheduler/internal/domain/scheduling"
	"github.com/clinicflow/scheduler/internal/platform/db"
	"github.com/clinicflow/scheduler/internal/platform/metrics"
	"github.com/clinicflow/scheduler/internal/platform/middleware"
	"github.com/clinicflow/scheduler/internal/platform/throttle"
	"github.com/clinicflow/scheduler/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scheduler-server",
		Short: "Doctor availability and appointment booking API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationsFS returns the embedded migrations unless dir points somewhere
// on disk.
func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, *pgxpool.Pool, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, "", err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, "", fmt.Errorf("DATABASE_URL is required for migrations")
	}
	schema, _ := cmd.Flags().GetString("schema")
	if schema == "" {
		schema = cfg.DBSchema
	}
	dir, _ := cmd.Flags().GetString("dir")

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, "", err
	}
	return db.NewMigrator(pool, migrationsFS(dir), schema), pool, schema, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, pool, schema, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, pool, schema, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("Migration status for schema: %s\n", schema)
			printStatus(os.Stdout, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to DB_SCHEMA)")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Str("service", "scheduler").Logger()
}

// storage is the set of repositories behind the Service for one driver.
type storage struct {
	weekly       scheduling.WeeklyAvailabilityRepository
	overrides    scheduling.OverrideRepository
	appointments scheduling.AppointmentRepository
	treatments   scheduling.TreatmentRepository
	tx           scheduling.Transactor

	pool  *pgxpool.Pool
	close func()
}

func memoryStorage() *storage {
	m := scheduling.NewMemoryStore()
	return &storage{
		weekly:       m.Weekly(),
		overrides:    m.Overrides(),
		appointments: m.Appointments(),
		treatments:   m.Treatments(),
		tx:           m,
		close:        func() {},
	}
}

func postgresStorage(pool *pgxpool.Pool) *storage {
	return &storage{
		weekly:       scheduling.NewWeeklyAvailabilityRepoPG(pool),
		overrides:    scheduling.NewOverrideRepoPG(pool),
		appointments: scheduling.NewAppointmentRepoPG(pool),
		treatments:   scheduling.NewTreatmentRepoPG(pool),
		tx:           db.NewTxRunner(pool),
		pool:         pool,
		close:        pool.Close,
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		return memoryStorage(), nil
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	if cfg.MigrationsAuto {
		n, err := db.NewMigrator(pool, migrations.FS, cfg.DBSchema).Up(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info().Int("applied", n).Msg("migrations up to date")
	}
	return postgresStorage(pool), nil
}

// openLimiter returns nil when REDIS_URL is unset, which disables booking
// attempt throttling.
func openLimiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*throttle.AttemptLimiter, *redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, booking throttle will fail open")
	}

	limiter := throttle.NewAttemptLimiter(client, throttle.Config{
		Limit:  cfg.BookingAttemptLimit,
		Window: cfg.BookingAttemptWindow,
	}, logger)
	return limiter, client, nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		return middleware.DefaultRateLimitConfig()
	}
	return rl
}

// serverDeps is everything newServer wires into the router.
type serverDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *storage
	limiter  scheduling.AttemptLimiter
	registry *prometheus.Registry
	tracer   trace.TracerProvider
}

func newServer(d serverDeps) (*echo.Echo, error) {
	loc, err := d.cfg.Location()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.Tracing(d.tracer))
	e.Use(middleware.Metrics(d.registry))
	e.Use(middleware.RequestTimeout(d.cfg.RequestTimeout, "/health", "/metrics"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.Secure())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.store.pool != nil {
		e.GET("/health/db", db.HealthHandler(d.store.pool))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry})))

	opts := []scheduling.Option{
		scheduling.WithLocation(loc),
		scheduling.WithLogger(d.logger.With().Str("component", "scheduling").Logger()),
		scheduling.WithMetrics(metrics.NewBookingMetrics(d.registry)),
	}
	if d.limiter != nil {
		opts = append(opts, scheduling.WithAttemptLimiter(d.limiter))
	}
	svc := scheduling.NewService(d.store.weekly, d.store.overrides, d.store.appointments,
		d.store.treatments, d.store.tx, opts...)

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(d.cfg)))
	scheduling.NewHandler(svc).RegisterRoutes(apiV1)

	return e, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.close()

	limiter, redisClient, err := openLimiter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure booking throttle")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	deps := serverDeps{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: newRegistry(),
		tracer:   tp,
	}
	if limiter != nil {
		deps.limiter = limiter
	}
	e, err := newServer(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
