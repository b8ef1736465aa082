package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"attestor/internal/item/models"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
	txcontext "attestor/pkg/platform/tx"

	"github.com/google/uuid"
)

// Postgres is the durable tier for items, the canonical index, and staging
// records. All writes are idempotent upserts so replication retries are safe.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the durable item store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) InsertItem(ctx context.Context, item *models.Item) error {
	enriched, err := json.Marshal(item.EnrichedData)
	if err != nil {
		return fmt.Errorf("marshal enriched data: %w", err)
	}
	query := `
		INSERT INTO items (dfid, status, enriched_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dfid) DO UPDATE
		SET status = EXCLUDED.status,
		    enriched_data = EXCLUDED.enriched_data,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		string(item.DFID), string(item.Status), enriched, item.CreatedAt, item.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return s.upsertIdentifiers(ctx, item)
}

func (s *Postgres) UpdateItem(ctx context.Context, item *models.Item) error {
	enriched, err := json.Marshal(item.EnrichedData)
	if err != nil {
		return fmt.Errorf("marshal enriched data: %w", err)
	}
	query := `
		UPDATE items
		SET status = $2, enriched_data = $3, updated_at = $4
		WHERE dfid = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		string(item.DFID), string(item.Status), enriched, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Replication can reorder across entities but never within one; a
		// missing row here means the insert op failed terminally. Upsert so
		// the record still converges.
		return s.InsertItem(ctx, item)
	}
	return s.upsertIdentifiers(ctx, item)
}

func (s *Postgres) upsertIdentifiers(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO item_identifiers (dfid, namespace, key, value, kind)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dfid, namespace, key, value) DO NOTHING
	`
	for _, ident := range item.Identifiers {
		if _, err := s.execer(ctx).ExecContext(ctx, query,
			string(item.DFID), ident.Namespace, ident.Key, ident.Value, string(ident.Kind),
		); err != nil {
			return fmt.Errorf("insert item identifier: %w", err)
		}
	}
	return nil
}

func (s *Postgres) BindTuples(ctx context.Context, dfid id.DFID, tuples []string) error {
	query := `
		INSERT INTO canonical_index (namespace, key, value, dfid)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key, value) DO NOTHING
	`
	for _, tuple := range tuples {
		namespace, key, value := models.SplitTuple(tuple)
		if _, err := s.execer(ctx).ExecContext(ctx, query,
			namespace, key, value, string(dfid),
		); err != nil {
			return fmt.Errorf("bind canonical tuple: %w", err)
		}
	}
	return nil
}

func (s *Postgres) FindByDFID(ctx context.Context, dfid id.DFID) (*models.Item, error) {
	query := `
		SELECT dfid, status, enriched_data, created_at, updated_at
		FROM items
		WHERE dfid = $1
	`
	item, err := s.scanItem(s.execer(ctx).QueryRowContext(ctx, query, string(dfid)))
	if err != nil {
		return nil, err
	}
	identifiers, err := s.loadIdentifiers(ctx, dfid)
	if err != nil {
		return nil, err
	}
	item.Identifiers = identifiers
	return item, nil
}

func (s *Postgres) LoadItems(ctx context.Context) ([]*models.Item, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT dfid, status, enriched_data, created_at, updated_at
		FROM items
	`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	byDFID := make(map[id.DFID]*models.Item)
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		byDFID[item.DFID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	identRows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT dfid, namespace, key, value, kind
		FROM item_identifiers
	`)
	if err != nil {
		return nil, fmt.Errorf("query item identifiers: %w", err)
	}
	defer identRows.Close()
	for identRows.Next() {
		var dfid string
		var ident models.Identifier
		var kind string
		if err := identRows.Scan(&dfid, &ident.Namespace, &ident.Key, &ident.Value, &kind); err != nil {
			return nil, fmt.Errorf("scan item identifier: %w", err)
		}
		ident.Kind = models.IdentifierKind(kind)
		if item, ok := byDFID[id.DFID(dfid)]; ok {
			item.Identifiers = append(item.Identifiers, ident)
		}
	}
	if err := identRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item identifiers: %w", err)
	}
	return items, nil
}

func (s *Postgres) LoadIndex(ctx context.Context) (map[string]id.DFID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT namespace, key, value, dfid
		FROM canonical_index
	`)
	if err != nil {
		return nil, fmt.Errorf("query canonical index: %w", err)
	}
	defer rows.Close()

	index := make(map[string]id.DFID)
	for rows.Next() {
		var ident models.Identifier
		var dfid string
		if err := rows.Scan(&ident.Namespace, &ident.Key, &ident.Value, &dfid); err != nil {
			return nil, fmt.Errorf("scan canonical index: %w", err)
		}
		index[ident.Tuple()] = id.DFID(dfid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canonical index: %w", err)
	}
	return index, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanItem(row rowScanner) (*models.Item, error) {
	var item models.Item
	var dfid, status string
	var enriched []byte
	if err := row.Scan(&dfid, &status, &enriched, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	item.DFID = id.DFID(dfid)
	item.Status = models.ItemStatus(status)
	if len(enriched) > 0 {
		if err := json.Unmarshal(enriched, &item.EnrichedData); err != nil {
			return nil, fmt.Errorf("unmarshal enriched data: %w", err)
		}
	}
	return &item, nil
}

func (s *Postgres) loadIdentifiers(ctx context.Context, dfid id.DFID) ([]models.Identifier, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT namespace, key, value, kind
		FROM item_identifiers
		WHERE dfid = $1
	`, string(dfid))
	if err != nil {
		return nil, fmt.Errorf("query item identifiers: %w", err)
	}
	defer rows.Close()

	var identifiers []models.Identifier
	for rows.Next() {
		var ident models.Identifier
		var kind string
		if err := rows.Scan(&ident.Namespace, &ident.Key, &ident.Value, &kind); err != nil {
			return nil, fmt.Errorf("scan item identifier: %w", err)
		}
		ident.Kind = models.IdentifierKind(kind)
		identifiers = append(identifiers, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item identifiers: %w", err)
	}
	return identifiers, nil
}

// -----------------------------------------------------------------------------
// Staging records
// -----------------------------------------------------------------------------

func (s *Postgres) InsertLocalItem(ctx context.Context, item *models.LocalItem) error {
	identifiers, err := json.Marshal(item.Identifiers)
	if err != nil {
		return fmt.Errorf("marshal identifiers: %w", err)
	}
	enriched, err := json.Marshal(item.EnrichedData)
	if err != nil {
		return fmt.Errorf("marshal enriched data: %w", err)
	}
	query := `
		INSERT INTO local_items (id, owner_id, identifiers, enriched_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(item.ID), uuid.UUID(item.Owner), identifiers, enriched, item.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert local item: %w", err)
	}
	return nil
}

func (s *Postgres) FindLocalItem(ctx context.Context, localID id.LocalItemID) (*models.LocalItem, error) {
	query := `
		SELECT id, owner_id, identifiers, enriched_data, created_at
		FROM local_items
		WHERE id = $1
	`
	return s.scanLocalItem(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(localID)))
}

func (s *Postgres) LoadLocalItems(ctx context.Context) ([]*models.LocalItem, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, owner_id, identifiers, enriched_data, created_at
		FROM local_items
	`)
	if err != nil {
		return nil, fmt.Errorf("query local items: %w", err)
	}
	defer rows.Close()

	var items []*models.LocalItem
	for rows.Next() {
		item, err := s.scanLocalItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate local items: %w", err)
	}
	return items, nil
}

func (s *Postgres) scanLocalItem(row rowScanner) (*models.LocalItem, error) {
	var item models.LocalItem
	var localID, owner uuid.UUID
	var identifiers, enriched []byte
	if err := row.Scan(&localID, &owner, &identifiers, &enriched, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan local item: %w", err)
	}
	item.ID = id.LocalItemID(localID)
	item.Owner = id.MemberID(owner)
	if len(identifiers) > 0 {
		if err := json.Unmarshal(identifiers, &item.Identifiers); err != nil {
			return nil, fmt.Errorf("unmarshal identifiers: %w", err)
		}
	}
	if len(enriched) > 0 {
		if err := json.Unmarshal(enriched, &item.EnrichedData); err != nil {
			return nil, fmt.Errorf("unmarshal enriched data: %w", err)
		}
	}
	return &item, nil
}

var (
	_ Durable      = (*Postgres)(nil)
	_ LocalDurable = (*Postgres)(nil)
)
