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

type AlertRepo struct {
	pool *pgxpool.Pool
}

func NewAlertRepo(pool *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

func (r *AlertRepo) Create(ctx context.Context, a *domain.IntegrityAlert) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO integrity_alerts (id, workspace_id, exhibit_id, alert_type, severity, message, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.WorkspaceID, a.ExhibitID, a.Type, a.Severity, a.Message, a.Resolved, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("alertRepo.Create: %w", err)
	}

	return nil
}

func (r *AlertRepo) FirstUnresolvedCritical(ctx context.Context, workspaceID uuid.UUID, types []domain.AlertType) (*domain.IntegrityAlert, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	row := r.pool.QueryRow(ctx,
		`SELECT id, workspace_id, exhibit_id, alert_type, severity, message, resolved, created_at, deleted_at
		 FROM integrity_alerts
		 WHERE workspace_id = $1 AND resolved = FALSE AND deleted_at IS NULL
		   AND severity = $2 AND alert_type = ANY($3)
		 ORDER BY created_at ASC
		 LIMIT 1`,
		workspaceID, domain.SeverityCritical, names,
	)

	var a domain.IntegrityAlert
	err := row.Scan(&a.ID, &a.WorkspaceID, &a.ExhibitID, &a.Type, &a.Severity, &a.Message, &a.Resolved, &a.CreatedAt, &a.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("alertRepo.FirstUnresolvedCritical: %w", err)
	}

	return &a, nil
}

func (r *AlertRepo) HasUnresolvedForExhibit(ctx context.Context, workspaceID, exhibitID uuid.UUID, typ domain.AlertType) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM integrity_alerts
		   WHERE workspace_id = $1 AND exhibit_id = $2 AND alert_type = $3
		     AND resolved = FALSE AND deleted_at IS NULL
		 )`,
		workspaceID, exhibitID, typ,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("alertRepo.HasUnresolvedForExhibit: %w", err)
	}

	return exists, nil
}

func (r *AlertRepo) Resolve(ctx context.Context, workspaceID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE integrity_alerts SET resolved = TRUE WHERE workspace_id = $1 AND id = $2`,
		workspaceID, id,
	)
	if err != nil {
		return fmt.Errorf("alertRepo.Resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}
