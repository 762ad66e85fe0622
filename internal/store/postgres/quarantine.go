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

// QuarantineRepo holds the per-workspace singleton quarantine rows.
type QuarantineRepo struct {
	pool *pgxpool.Pool
}

func NewQuarantineRepo(pool *pgxpool.Pool) *QuarantineRepo {
	return &QuarantineRepo{pool: pool}
}

func (r *QuarantineRepo) Set(ctx context.Context, p *domain.QuarantinePreference) error {
	details, err := json.Marshal(p.Details)
	if err != nil {
		return fmt.Errorf("quarantineRepo.Set: marshal details: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO quarantine_preferences (workspace_id, reason, source, details, set_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workspace_id)
		 DO UPDATE SET reason = EXCLUDED.reason, source = EXCLUDED.source,
		               details = EXCLUDED.details, set_at = EXCLUDED.set_at`,
		p.WorkspaceID, p.Reason, p.Source, details, p.SetAt,
	)
	if err != nil {
		return fmt.Errorf("quarantineRepo.Set: %w", err)
	}

	return nil
}

func (r *QuarantineRepo) Get(ctx context.Context, workspaceID uuid.UUID) (*domain.QuarantinePreference, error) {
	var p domain.QuarantinePreference
	var details []byte

	err := r.pool.QueryRow(ctx,
		`SELECT workspace_id, reason, source, details, set_at
		 FROM quarantine_preferences WHERE workspace_id = $1`,
		workspaceID,
	).Scan(&p.WorkspaceID, &p.Reason, &p.Source, &details, &p.SetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quarantineRepo.Get: %w", err)
	}

	if err := json.Unmarshal(details, &p.Details); err != nil {
		return nil, fmt.Errorf("quarantineRepo.Get: unmarshal details: %w", err)
	}

	return &p, nil
}

func (r *QuarantineRepo) Clear(ctx context.Context, workspaceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM quarantine_preferences WHERE workspace_id = $1`,
		workspaceID,
	)
	if err != nil {
		return fmt.Errorf("quarantineRepo.Clear: %w", err)
	}

	return nil
}
