//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// schema mirrors the production migrations closely enough for store tests.
const schema = `
CREATE TABLE IF NOT EXISTS items (
	dfid          TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	enriched_data JSONB,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS item_identifiers (
	dfid      TEXT NOT NULL REFERENCES items (dfid),
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	kind      TEXT NOT NULL,
	PRIMARY KEY (dfid, namespace, key, value)
);

CREATE TABLE IF NOT EXISTS canonical_index (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	dfid      TEXT NOT NULL,
	PRIMARY KEY (namespace, key, value)
);

CREATE TABLE IF NOT EXISTS local_items (
	id            UUID PRIMARY KEY,
	owner_id      UUID NOT NULL,
	identifiers   JSONB,
	enriched_data JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS circuits (
	id                     UUID PRIMARY KEY,
	name                   TEXT NOT NULL,
	owner_id               UUID NOT NULL,
	adapter_kind           TEXT NOT NULL,
	tier_requirement       TEXT NOT NULL,
	sponsor_adapter_access BOOLEAN NOT NULL DEFAULT FALSE,
	network                TEXT NOT NULL DEFAULT '',
	auto_approve_members   BOOLEAN NOT NULL DEFAULT FALSE,
	require_push_approval  BOOLEAN NOT NULL DEFAULT FALSE,
	access_mode            TEXT NOT NULL,
	auto_publish           BOOLEAN NOT NULL DEFAULT FALSE,
	published_items        JSONB,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS circuit_members (
	circuit_id UUID NOT NULL REFERENCES circuits (id),
	member_id  UUID NOT NULL,
	role       TEXT NOT NULL,
	status     TEXT NOT NULL,
	can_push   BOOLEAN NOT NULL DEFAULT FALSE,
	joined_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (circuit_id, member_id)
);

CREATE TABLE IF NOT EXISTS circuit_items (
	circuit_id UUID NOT NULL REFERENCES circuits (id),
	dfid       TEXT NOT NULL,
	pushed_by  UUID NOT NULL,
	pushed_at  TIMESTAMPTZ NOT NULL,
	state      TEXT NOT NULL,
	PRIMARY KEY (circuit_id, dfid)
);

CREATE TABLE IF NOT EXISTS storage_history (
	dfid             TEXT NOT NULL,
	adapter_kind     TEXT NOT NULL,
	content_address  TEXT NOT NULL,
	ledger_reference TEXT NOT NULL DEFAULT '',
	network          TEXT NOT NULL DEFAULT '',
	triggered_by     UUID NOT NULL,
	stored_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (dfid, adapter_kind, ledger_reference)
);
`

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	DSN       string
}

// NewPostgresContainer starts Postgres and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("attestor"),
		tcpostgres.WithUsername("attestor"),
		tcpostgres.WithPassword("attestor"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}
}

// TruncateTables empties the given tables. Call between tests for isolation;
// pass children before parents or rely on CASCADE.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", ")))
	return err
}
