package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-legal/custodia/internal/domain"
)

type TombstoneRepo struct {
	pool *pgxpool.Pool
}

func NewTombstoneRepo(pool *pgxpool.Pool) *TombstoneRepo {
	return &TombstoneRepo{pool: pool}
}

func (r *TombstoneRepo) Create(ctx context.Context, t *domain.Tombstone) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tombstones (id, workspace_id, exhibit_id, reason, destroyed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.WorkspaceID, t.ExhibitID, t.Reason, t.DestroyedAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("tombstoneRepo.Create: %w", err)
	}

	return nil
}

func (r *TombstoneRepo) GetByExhibit(ctx context.Context, workspaceID, exhibitID uuid.UUID) (*domain.Tombstone, error) {
	var t domain.Tombstone
	err := r.pool.QueryRow(ctx,
		`SELECT id, workspace_id, exhibit_id, reason, destroyed_at, created_at
		 FROM tombstones WHERE workspace_id = $1 AND exhibit_id = $2`,
		workspaceID, exhibitID,
	).Scan(&t.ID, &t.WorkspaceID, &t.ExhibitID, &t.Reason, &t.DestroyedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tombstoneRepo.GetByExhibit: %w", err)
	}

	return &t, nil
}
