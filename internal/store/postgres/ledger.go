package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-legal/custodia/internal/domain"
)

// LedgerRepo is the append-only audit_events table. Rows are never
// updated or deleted; ordering is (created_at, id).
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Insert(ctx context.Context, event *domain.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("ledgerRepo.Insert: marshal details: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_events (id, workspace_id, actor_id, event_type, action, details, prev_hash, hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.WorkspaceID, event.ActorID, event.EventType,
		event.Action, details, event.PrevHash, event.Hash, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ledgerRepo.Insert: %w", err)
	}

	return nil
}

func (r *LedgerRepo) HeadHash(ctx context.Context, workspaceID uuid.UUID) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT hash FROM audit_events WHERE workspace_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		workspaceID,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ledgerRepo.HeadHash: %w", err)
	}

	return hash, nil
}

func (r *LedgerRepo) Page(ctx context.Context, workspaceID uuid.UUID, after *domain.LedgerCursor, limit int) ([]*domain.AuditEvent, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if after == nil {
		rows, err = r.pool.Query(ctx,
			`SELECT id, workspace_id, actor_id, event_type, action, details, prev_hash, hash, created_at
			 FROM audit_events WHERE workspace_id = $1
			 ORDER BY created_at ASC, id ASC
			 LIMIT $2`,
			workspaceID, limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT id, workspace_id, actor_id, event_type, action, details, prev_hash, hash, created_at
			 FROM audit_events WHERE workspace_id = $1 AND (created_at, id) > ($2, $3)
			 ORDER BY created_at ASC, id ASC
			 LIMIT $4`,
			workspaceID, after.CreatedAt, after.ID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.Page: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, "ledgerRepo.Page")
}

func scanEvents(rows pgx.Rows, caller string) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var details []byte

		if err := rows.Scan(
			&e.ID, &e.WorkspaceID, &e.ActorID, &e.EventType, &e.Action,
			&details, &e.PrevHash, &e.Hash, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("%s: unmarshal details: %w", caller, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return events, nil
}
