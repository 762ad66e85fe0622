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

type AuditRunRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRunRepo(pool *pgxpool.Pool) *AuditRunRepo {
	return &AuditRunRepo{pool: pool}
}

func (r *AuditRunRepo) Create(ctx context.Context, run *domain.AuditRun) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_runs (id, workspace_id, kind, status, checked, failed, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.WorkspaceID, run.Kind, run.Status, run.Checked, run.Failed, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("auditRunRepo.Create: %w", err)
	}

	return nil
}

func (r *AuditRunRepo) LatestByKind(ctx context.Context, workspaceID uuid.UUID, kind domain.AuditRunKind) (*domain.AuditRun, error) {
	var run domain.AuditRun
	err := r.pool.QueryRow(ctx,
		`SELECT id, workspace_id, kind, status, checked, failed, started_at, finished_at
		 FROM audit_runs WHERE workspace_id = $1 AND kind = $2
		 ORDER BY finished_at DESC
		 LIMIT 1`,
		workspaceID, kind,
	).Scan(&run.ID, &run.WorkspaceID, &run.Kind, &run.Status, &run.Checked, &run.Failed, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auditRunRepo.LatestByKind: %w", err)
	}

	return &run, nil
}
