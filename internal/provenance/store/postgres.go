package store

import (
	"context"
	"database/sql"
	"fmt"

	"attestor/internal/provenance/models"
	id "attestor/pkg/domain"
	txcontext "attestor/pkg/platform/tx"

	"github.com/google/uuid"
)

// Postgres is the durable tier for provenance timelines. Inserts are
// idempotent on (dfid, adapter_kind, ledger_reference) so replayed
// replication ops and duplicate watcher events converge on one row.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the durable provenance store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) exec(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) InsertRecord(ctx context.Context, record *models.StorageHistoryRecord) error {
	_, err := s.exec(ctx).ExecContext(ctx, `
		INSERT INTO storage_history (
			dfid, adapter_kind, content_address, ledger_reference,
			network, triggered_by, stored_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dfid, adapter_kind, ledger_reference) DO NOTHING
	`,
		string(record.DFID), string(record.AdapterKind), record.ContentAddress,
		record.LedgerReference, record.Network, uuid.UUID(record.TriggeredBy),
		record.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (s *Postgres) ListByDFID(ctx context.Context, dfid id.DFID) ([]*models.StorageHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dfid, adapter_kind, content_address, ledger_reference,
		       network, triggered_by, stored_at
		FROM storage_history
		WHERE dfid = $1
		ORDER BY stored_at
	`, string(dfid))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Postgres) LoadRecords(ctx context.Context) ([]*models.StorageHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dfid, adapter_kind, content_address, ledger_reference,
		       network, triggered_by, stored_at
		FROM storage_history
		ORDER BY stored_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*models.StorageHistoryRecord, error) {
	var records []*models.StorageHistoryRecord
	for rows.Next() {
		var (
			r           models.StorageHistoryRecord
			dfid, kind  string
			triggeredBy uuid.UUID
		)
		if err := rows.Scan(&dfid, &kind, &r.ContentAddress, &r.LedgerReference,
			&r.Network, &triggeredBy, &r.StoredAt); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		r.DFID = id.DFID(dfid)
		r.AdapterKind = id.AdapterKind(kind)
		r.TriggeredBy = id.MemberID(triggeredBy)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history records: %w", err)
	}
	return records, nil
}

var _ Durable = (*Postgres)(nil)
