// Package integration runs the scheduling engine against a real PostgreSQL.
//
// Set SCHEDULER_TEST_DATABASE_URL to use an existing server, or
// SCHEDULER_TEST_DOCKER=1 to start a disposable postgres:16-alpine container.
// Without either the suite is skipped.
package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/scheduler/internal/domain/scheduling"
	"github.com/clinicflow/scheduler/internal/platform/db"
	"github.com/clinicflow/scheduler/migrations"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := databaseURL(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up postgres: %v\n", err)
		os.Exit(1)
	}
	if connStr == "" {
		fmt.Println("integration: SCHEDULER_TEST_DATABASE_URL not set, skipping")
		os.Exit(0)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: connStr, MaxConns: 4, MinConns: 1})
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	globalDB = &testDB{Pool: pool, ConnStr: connStr}

	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

func databaseURL(ctx context.Context) (string, func(), error) {
	if url := os.Getenv("SCHEDULER_TEST_DATABASE_URL"); url != "" {
		return url, func() {}, nil
	}
	if os.Getenv("SCHEDULER_TEST_DOCKER") == "1" {
		return startPostgresContainer(ctx)
	}
	return "", func() {}, nil
}

// uniqueSchema generates a unique schema name for test isolation.
func uniqueSchema(prefix string) string {
	short := strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	return fmt.Sprintf("%s_%s", prefix, short)
}

// migratedSchema applies every migration into a fresh schema and returns a
// pool whose search_path points at it. The schema is dropped on cleanup.
func migratedSchema(t *testing.T, ctx context.Context, prefix string) *pgxpool.Pool {
	t.Helper()
	schema := uniqueSchema(prefix)

	if _, err := db.NewMigrator(globalDB.Pool, migrations.FS, schema).Up(ctx); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      globalDB.ConnStr,
		MaxConns: 20,
		MinConns: 1,
		Schema:   schema,
	})
	if err != nil {
		t.Fatalf("open pool for %s: %v", schema, err)
	}

	t.Cleanup(func() {
		pool.Close()
		_, err := globalDB.Pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		if err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})
	return pool
}

// newPGService wires the service over the pgx repositories of pool.
func newPGService(pool *pgxpool.Pool) *scheduling.Service {
	return scheduling.NewService(
		scheduling.NewWeeklyAvailabilityRepoPG(pool),
		scheduling.NewOverrideRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		scheduling.NewTreatmentRepoPG(pool),
		db.NewTxRunner(pool),
	)
}

// createTestDoctor inserts the parent row appointments and schedules point to.
func createTestDoctor(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := pool.Exec(ctx,
		`INSERT INTO doctor (id, name, specialization) VALUES ($1, $2, $3)`,
		id, name, "General practice"); err != nil {
		t.Fatalf("create test doctor: %v", err)
	}
	return id
}

func createTestPatient(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := pool.Exec(ctx,
		`INSERT INTO patient (id, name, phone) VALUES ($1, $2, $3)`,
		id, name, "555-0100"); err != nil {
		t.Fatalf("create test patient: %v", err)
	}
	return id
}

// nextWeekday returns the first date strictly after today that falls on day.
func nextWeekday(day scheduling.Weekday) scheduling.Date {
	d := scheduling.Today(time.Now(), time.UTC).AddDays(1)
	for d.Weekday() != day {
		d = d.AddDays(1)
	}
	return d
}
