// Command corectl runs the control-plane core: the composition root that
// wires postgres-backed storage into auth, provisioning, and orchestration
// services, applies pending migrations, and serves a debug endpoint while
// the services are driven by an embedding process (no HTTP/gRPC gateway is
// started here; that lives in an external collaborator).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	otelapi "go.opentelemetry.io/otel"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/watchdogstudios/cassandra-core/internal/application/auth"
	"github.com/watchdogstudios/cassandra-core/internal/application/orchestration"
	"github.com/watchdogstudios/cassandra-core/internal/application/provisioning"
	"github.com/watchdogstudios/cassandra-core/internal/application/registry"
	"github.com/watchdogstudios/cassandra-core/internal/infra/metrics"
	agentRepo "github.com/watchdogstudios/cassandra-core/internal/infra/storage/agent/postgres"
	apikeyRepo "github.com/watchdogstudios/cassandra-core/internal/infra/storage/apikey/postgres"
	projectRepo "github.com/watchdogstudios/cassandra-core/internal/infra/storage/project/postgres"
	taskRepo "github.com/watchdogstudios/cassandra-core/internal/infra/storage/task/postgres"
	tenantRepo "github.com/watchdogstudios/cassandra-core/internal/infra/storage/tenant/postgres"
	workflowRepo "github.com/watchdogstudios/cassandra-core/internal/infra/storage/workflow/postgres"
	"github.com/watchdogstudios/cassandra-core/pkg/common/logger"
	"github.com/watchdogstudios/cassandra-core/pkg/common/otel"
)

var build = "develop"

const serviceType = "cassandra-core"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	ctx := context.Background()
	svcName := fmt.Sprintf("CASSANDRA-CORE-%s", hostname)

	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"pod":      os.Getenv("POD_NAME"),
		"app":      serviceType,
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r slog.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			r.Attrs(func(a slog.Attr) bool {
				errorAttrs[a.Key] = a.Value.Any()
				return true
			})
			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string { return otel.GetTraceID(ctx) }

	appLog := logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	if err := run(ctx, appLog, hostname); err != nil {
		appLog.Error(ctx, "startup error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, appLog *logger.Logger, hostname string) error {
	appLog.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	cfg := struct {
		DebugHost string
		Tempo     struct {
			Host        string
			ServiceName string
			Probability float64
		}
		Auth struct {
			JWTSecret        string
			TokenTTL         time.Duration
			RefreshTokenTTL  time.Duration
			HeartbeatTimeout time.Duration
		}
	}{}

	cfg.DebugHost = "0.0.0.0:8090"
	cfg.Tempo.Host = "tempo:4317"
	cfg.Tempo.ServiceName = serviceType
	cfg.Tempo.Probability = 0.05
	cfg.Auth.TokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	cfg.Auth.HeartbeatTimeout = 5 * time.Minute

	if debugHost := os.Getenv("DEBUG_HOST"); debugHost != "" {
		cfg.DebugHost = debugHost
	}
	if tempoHost := os.Getenv("TEMPO_HOST"); tempoHost != "" {
		cfg.Tempo.Host = tempoHost
	}
	if probStr := os.Getenv("TEMPO_SAMPLING_PROBABILITY"); probStr != "" {
		if prob, err := strconv.ParseFloat(probStr, 64); err == nil {
			cfg.Tempo.Probability = prob
		}
	}
	cfg.Auth.JWTSecret = os.Getenv("CASS_JWT_SECRET")
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret"
	}

	appLog.Info(ctx, "startup", "status", "initializing tracing support")
	traceProvider, teardown, err := otel.InitTelemetry(appLog, otel.Config{
		ServiceName:      cfg.Tempo.ServiceName,
		ExporterEndpoint: cfg.Tempo.Host,
		ExcludedRoutes: map[string]struct{}{
			"/debug/pprof/": {},
			"/debug/vars":   {},
			"/healthz":      {},
		},
		Probability: cfg.Tempo.Probability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(cfg.Tempo.ServiceName)

	appLog.Info(ctx, "startup", "status", "initializing database")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := envOr("POSTGRES_USER", "postgres")
		password := envOr("POSTGRES_PASSWORD", "postgres")
		host := envOr("POSTGRES_HOST", "postgres")
		dbname := envOr("POSTGRES_DB", "cassandra-core")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", user, password, host, dbname)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 20
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(pool); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	go func() {
		appLog.Info(ctx, "startup", "status", "debug router started", "host", cfg.DebugHost)
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		if err := http.ListenAndServe(cfg.DebugHost, mux); err != nil {
			appLog.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.DebugHost, "msg", err)
		}
	}()

	appLog.Info(ctx, "startup", "status", "initializing repositories and services")

	tenantStore := tenantRepo.New(pool, tracer)
	projectStore := projectRepo.New(pool, tracer)
	agentStore := agentRepo.New(pool, tracer)
	apiKeyStore := apikeyRepo.New(pool, tracer)
	taskStore := taskRepo.New(pool, tracer)
	workflowStore := workflowRepo.New(pool, tracer)

	metricsRegistry, err := metrics.NewRegistry(otelapi.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("building metrics registry: %w", err)
	}

	authSvc := auth.New(tenantStore, apiKeyStore, []byte(cfg.Auth.JWTSecret),
		auth.WithLogger(appLog),
		auth.WithTracer(tracer),
		auth.WithTTL(cfg.Auth.TokenTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
		auth.WithMetrics(metricsRegistry.Auth),
	)
	provisioningSvc := provisioning.New(tenantStore, projectStore, agentStore, authSvc,
		provisioning.WithLogger(appLog),
		provisioning.WithTracer(tracer),
		provisioning.WithHeartbeatTimeout(cfg.Auth.HeartbeatTimeout),
		provisioning.WithMetrics(metricsRegistry.Provisioning),
	)
	orchestrationEngine := orchestration.New(taskStore, workflowStore,
		orchestration.WithLogger(appLog),
		orchestration.WithTracer(tracer),
		orchestration.WithMetrics(metricsRegistry.Orchestration),
	)

	registry.SetGlobal(registry.Build(nil, authSvc, provisioningSvc, orchestrationEngine))

	appLog.Info(ctx, "startup", "status", "control plane core ready")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	appLog.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
	defer appLog.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runMigrations uses golang-migrate to apply all up migrations from
// db/migrations against pool.
func runMigrations(pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(context.Background())
	if err != nil {
		return fmt.Errorf("could not acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	const migrationsPath = "file:///app/db/migrations"
	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
