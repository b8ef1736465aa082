package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"attestor/internal/circuit/models"
	id "attestor/pkg/domain"
	"attestor/pkg/platform/sentinel"
	txcontext "attestor/pkg/platform/tx"

	"github.com/google/uuid"
)

// Postgres is the durable tier for circuit aggregates. UpsertCircuit writes
// the circuit row, members, and items in one transaction so durable state
// only ever shows complete aggregates.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the durable circuit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) UpsertCircuit(ctx context.Context, circuit *models.Circuit) error {
	if tx, ok := txcontext.From(ctx); ok {
		return s.upsertInTx(ctx, tx, circuit)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin circuit upsert: %w", err)
	}
	if err := s.upsertInTx(ctx, tx, circuit); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit circuit upsert: %w", err)
	}
	return nil
}

func (s *Postgres) upsertInTx(ctx context.Context, tx *sql.Tx, circuit *models.Circuit) error {
	published, err := json.Marshal(publishedSlice(circuit.PublicSettings))
	if err != nil {
		return fmt.Errorf("marshal published items: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO circuits (
			id, name, owner_id, adapter_kind, tier_requirement,
			sponsor_adapter_access, network, auto_approve_members,
			require_push_approval, access_mode, auto_publish,
			published_items, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    adapter_kind = EXCLUDED.adapter_kind,
		    tier_requirement = EXCLUDED.tier_requirement,
		    sponsor_adapter_access = EXCLUDED.sponsor_adapter_access,
		    network = EXCLUDED.network,
		    auto_approve_members = EXCLUDED.auto_approve_members,
		    require_push_approval = EXCLUDED.require_push_approval,
		    access_mode = EXCLUDED.access_mode,
		    auto_publish = EXCLUDED.auto_publish,
		    published_items = EXCLUDED.published_items,
		    updated_at = EXCLUDED.updated_at
	`,
		uuid.UUID(circuit.ID), circuit.Name, uuid.UUID(circuit.Owner),
		string(circuit.AdapterConfig.Kind), string(circuit.AdapterConfig.TierRequirement),
		circuit.AdapterConfig.SponsorAdapterAccess, circuit.AdapterConfig.Network,
		circuit.AutoApproveMembers, circuit.RequirePushApproval,
		string(circuit.PublicSettings.AccessMode), circuit.PublicSettings.AutoPublishPushedItems,
		published, circuit.CreatedAt, circuit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert circuit: %w", err)
	}

	for _, m := range circuit.Members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO circuit_members (circuit_id, member_id, role, status, can_push, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (circuit_id, member_id) DO UPDATE
			SET role = EXCLUDED.role,
			    status = EXCLUDED.status,
			    can_push = EXCLUDED.can_push
		`,
			uuid.UUID(circuit.ID), uuid.UUID(m.ID), string(m.Role), string(m.Status), m.CanPush, m.JoinedAt,
		); err != nil {
			return fmt.Errorf("upsert circuit member: %w", err)
		}
	}

	for _, ci := range circuit.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO circuit_items (circuit_id, dfid, pushed_by, pushed_at, state)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (circuit_id, dfid) DO UPDATE
			SET pushed_by = EXCLUDED.pushed_by,
			    pushed_at = EXCLUDED.pushed_at,
			    state = EXCLUDED.state
		`,
			uuid.UUID(circuit.ID), string(ci.DFID), uuid.UUID(ci.PushedBy), ci.PushedAt, string(ci.State),
		); err != nil {
			return fmt.Errorf("upsert circuit item: %w", err)
		}
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, circuitID id.CircuitID) (*models.Circuit, error) {
	circuit, err := s.scanCircuit(s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, adapter_kind, tier_requirement,
		       sponsor_adapter_access, network, auto_approve_members,
		       require_push_approval, access_mode, auto_publish,
		       published_items, created_at, updated_at
		FROM circuits
		WHERE id = $1
	`, uuid.UUID(circuitID)))
	if err != nil {
		return nil, err
	}
	if err := s.loadRelations(ctx, circuit); err != nil {
		return nil, err
	}
	return circuit, nil
}

func (s *Postgres) LoadCircuits(ctx context.Context) ([]*models.Circuit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_id, adapter_kind, tier_requirement,
		       sponsor_adapter_access, network, auto_approve_members,
		       require_push_approval, access_mode, auto_publish,
		       published_items, created_at, updated_at
		FROM circuits
	`)
	if err != nil {
		return nil, fmt.Errorf("query circuits: %w", err)
	}
	defer rows.Close()

	var circuits []*models.Circuit
	for rows.Next() {
		circuit, err := s.scanCircuit(rows)
		if err != nil {
			return nil, err
		}
		circuits = append(circuits, circuit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate circuits: %w", err)
	}
	for _, circuit := range circuits {
		if err := s.loadRelations(ctx, circuit); err != nil {
			return nil, err
		}
	}
	return circuits, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanCircuit(row rowScanner) (*models.Circuit, error) {
	var (
		circuit      models.Circuit
		circuitID    uuid.UUID
		owner        uuid.UUID
		kind         string
		tier         string
		accessMode   string
		published    []byte
	)
	if err := row.Scan(
		&circuitID, &circuit.Name, &owner, &kind, &tier,
		&circuit.AdapterConfig.SponsorAdapterAccess, &circuit.AdapterConfig.Network,
		&circuit.AutoApproveMembers, &circuit.RequirePushApproval,
		&accessMode, &circuit.PublicSettings.AutoPublishPushedItems,
		&published, &circuit.CreatedAt, &circuit.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan circuit: %w", err)
	}
	circuit.ID = id.CircuitID(circuitID)
	circuit.Owner = id.MemberID(owner)
	circuit.AdapterConfig.Kind = id.AdapterKind(kind)
	circuit.AdapterConfig.TierRequirement = id.Tier(tier)
	circuit.PublicSettings.AccessMode = models.AccessMode(accessMode)
	circuit.Members = make(map[id.MemberID]*models.Member)
	circuit.Items = make(map[id.DFID]*models.CircuitItem)
	circuit.PublicSettings.PublishedItems = make(map[id.DFID]struct{})
	if len(published) > 0 {
		var dfids []string
		if err := json.Unmarshal(published, &dfids); err != nil {
			return nil, fmt.Errorf("unmarshal published items: %w", err)
		}
		for _, d := range dfids {
			circuit.PublicSettings.PublishedItems[id.DFID(d)] = struct{}{}
		}
	}
	return &circuit, nil
}

func (s *Postgres) loadRelations(ctx context.Context, circuit *models.Circuit) error {
	memberRows, err := s.db.QueryContext(ctx, `
		SELECT member_id, role, status, can_push, joined_at
		FROM circuit_members
		WHERE circuit_id = $1
	`, uuid.UUID(circuit.ID))
	if err != nil {
		return fmt.Errorf("query circuit members: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var m models.Member
		var memberID uuid.UUID
		var role, status string
		if err := memberRows.Scan(&memberID, &role, &status, &m.CanPush, &m.JoinedAt); err != nil {
			return fmt.Errorf("scan circuit member: %w", err)
		}
		m.ID = id.MemberID(memberID)
		m.Role = models.Role(role)
		m.Status = models.MemberStatus(status)
		circuit.Members[m.ID] = &m
	}
	if err := memberRows.Err(); err != nil {
		return fmt.Errorf("iterate circuit members: %w", err)
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT dfid, pushed_by, pushed_at, state
		FROM circuit_items
		WHERE circuit_id = $1
	`, uuid.UUID(circuit.ID))
	if err != nil {
		return fmt.Errorf("query circuit items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var ci models.CircuitItem
		var dfid string
		var pushedBy uuid.UUID
		var state string
		if err := itemRows.Scan(&dfid, &pushedBy, &ci.PushedAt, &state); err != nil {
			return fmt.Errorf("scan circuit item: %w", err)
		}
		ci.CircuitID = circuit.ID
		ci.DFID = id.DFID(dfid)
		ci.PushedBy = id.MemberID(pushedBy)
		ci.State = models.ItemState(state)
		circuit.Items[ci.DFID] = &ci
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("iterate circuit items: %w", err)
	}
	return nil
}

func publishedSlice(settings models.PublicSettings) []string {
	out := make([]string, 0, len(settings.PublishedItems))
	for dfid := range settings.PublishedItems {
		out = append(out, string(dfid))
	}
	return out
}

var _ Durable = (*Postgres)(nil)
