package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-legal/custodia/internal/domain"
)

type ExhibitRepo struct {
	pool *pgxpool.Pool
}

func NewExhibitRepo(pool *pgxpool.Pool) *ExhibitRepo {
	return &ExhibitRepo{pool: pool}
}

const exhibitColumns = `id, workspace_id, matter_id, file_name, storage_key, integrity_hash,
	verification_status, verified_at, revoked_at, revocation_reason, created_at`

func (r *ExhibitRepo) Create(ctx context.Context, e *domain.Exhibit) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exhibits (`+exhibitColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.WorkspaceID, e.MatterID, e.FileName, e.StorageKey, e.IntegrityHash,
		e.VerificationStatus, e.VerifiedAt, e.RevokedAt, nullableString(e.RevocationReason), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("exhibitRepo.Create: %w", err)
	}

	return nil
}

func (r *ExhibitRepo) Get(ctx context.Context, workspaceID, id uuid.UUID) (*domain.Exhibit, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+exhibitColumns+` FROM exhibits WHERE workspace_id = $1 AND id = $2`,
		workspaceID, id,
	)

	exhibit, err := scanExhibit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("exhibitRepo.Get: %w", err)
	}

	return exhibit, nil
}

func (r *ExhibitRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Exhibit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+exhibitColumns+` FROM exhibits WHERE workspace_id = $1
		 ORDER BY created_at ASC, id ASC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("exhibitRepo.ListByWorkspace: %w", err)
	}
	defer rows.Close()

	return scanExhibits(rows, "exhibitRepo.ListByWorkspace")
}

func (r *ExhibitRepo) ListByIDs(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID) ([]*domain.Exhibit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+exhibitColumns+` FROM exhibits WHERE workspace_id = $1 AND id = ANY($2)
		 ORDER BY created_at ASC, id ASC`,
		workspaceID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("exhibitRepo.ListByIDs: %w", err)
	}
	defer rows.Close()

	return scanExhibits(rows, "exhibitRepo.ListByIDs")
}

func (r *ExhibitRepo) Revoke(ctx context.Context, workspaceID, id uuid.UUID, reason string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exhibits
		 SET verification_status = $1, revoked_at = $2, revocation_reason = $3
		 WHERE workspace_id = $4 AND id = $5`,
		domain.VerificationRevoked, at, reason, workspaceID, id,
	)
	if err != nil {
		return fmt.Errorf("exhibitRepo.Revoke: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *ExhibitRepo) TouchVerified(ctx context.Context, workspaceID, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exhibits SET verified_at = $1 WHERE workspace_id = $2 AND id = $3`,
		at, workspaceID, id,
	)
	if err != nil {
		return fmt.Errorf("exhibitRepo.TouchVerified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func scanExhibit(row pgx.Row) (*domain.Exhibit, error) {
	var e domain.Exhibit
	var reason *string

	if err := row.Scan(
		&e.ID, &e.WorkspaceID, &e.MatterID, &e.FileName, &e.StorageKey, &e.IntegrityHash,
		&e.VerificationStatus, &e.VerifiedAt, &e.RevokedAt, &reason, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if reason != nil {
		e.RevocationReason = *reason
	}

	return &e, nil
}

func scanExhibits(rows pgx.Rows, caller string) ([]*domain.Exhibit, error) {
	var exhibits []*domain.Exhibit
	for rows.Next() {
		exhibit, err := scanExhibit(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		exhibits = append(exhibits, exhibit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return exhibits, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
