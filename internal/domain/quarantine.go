package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QuarantinePreference is the per-workspace block switch. At most one row
// exists per workspace; presence means the workspace is quarantined.
type QuarantinePreference struct {
	WorkspaceID uuid.UUID
	Reason      string
	Source      string
	Details     map[string]any
	SetAt       time.Time
}

type QuarantineRepository interface {
	// Set creates or replaces the workspace's quarantine preference.
	Set(ctx context.Context, p *QuarantinePreference) error

	// Get returns ErrNotFound when the workspace is not quarantined.
	Get(ctx context.Context, workspaceID uuid.UUID) (*QuarantinePreference, error)

	Clear(ctx context.Context, workspaceID uuid.UUID) error
}

// AuditRunKind distinguishes persisted audit proof records.
type AuditRunKind string

const (
	RunContinuous AuditRunKind = "CONTINUOUS"
	RunDeep       AuditRunKind = "DEEP"
	RunChain      AuditRunKind = "CHAIN"
)

// AuditRunStatus is the recorded outcome of an audit run.
type AuditRunStatus string

const (
	RunSuccess AuditRunStatus = "SUCCESS"
	RunFailed  AuditRunStatus = "FAILED"
)

// AuditRun records one completed audit or chain-proof pass. The newest
// SUCCESS rows feed the strict-mode staleness check in the integrity gate.
type AuditRun struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Kind        AuditRunKind
	Status      AuditRunStatus
	Checked     int
	Failed      int
	StartedAt   time.Time
	FinishedAt  time.Time
}

type AuditRunRepository interface {
	Create(ctx context.Context, r *AuditRun) error

	// LatestByKind returns the most recent run of the given kind regardless of
	// status, or ErrNotFound.
	LatestByKind(ctx context.Context, workspaceID uuid.UUID, kind AuditRunKind) (*AuditRun, error)
}
