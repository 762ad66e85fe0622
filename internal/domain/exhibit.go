package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the integrity lifecycle state of an exhibit.
type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "PENDING"
	VerificationCertified VerificationStatus = "CERTIFIED"
	VerificationRevoked   VerificationStatus = "REVOKED"
)

// Revocation reasons recorded on exhibits.
const (
	RevocationHashMismatchOnRead = "HASH_MISMATCH_ON_READ"
	RevocationHashMismatchAudit  = "HASH_MISMATCH_AUDIT"
)

// Exhibit is an ingested evidence file. IntegrityHash is the content hash
// recorded at ingestion; a REVOKED exhibit cannot be re-certified without
// re-ingestion.
type Exhibit struct {
	ID                 uuid.UUID
	WorkspaceID        uuid.UUID
	MatterID           uuid.UUID
	FileName           string
	StorageKey         string
	IntegrityHash      string
	VerificationStatus VerificationStatus
	VerifiedAt         *time.Time
	RevokedAt          *time.Time
	RevocationReason   string
	CreatedAt          time.Time
}

type ExhibitRepository interface {
	Create(ctx context.Context, e *Exhibit) error
	Get(ctx context.Context, workspaceID, id uuid.UUID) (*Exhibit, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]*Exhibit, error)
	ListByIDs(ctx context.Context, workspaceID uuid.UUID, ids []uuid.UUID) ([]*Exhibit, error)

	// Revoke sets verification_status=REVOKED with the given reason.
	Revoke(ctx context.Context, workspaceID, id uuid.UUID, reason string, at time.Time) error

	// TouchVerified updates verified_at after a successful check.
	TouchVerified(ctx context.Context, workspaceID, id uuid.UUID, at time.Time) error
}

// Tombstone marks an exhibit as lawfully destroyed. Its existence exempts
// the exhibit from tamper-revocation when the stored bytes are missing or
// no longer match.
type Tombstone struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ExhibitID   uuid.UUID
	Reason      string
	DestroyedAt time.Time
	CreatedAt   time.Time
}

type TombstoneRepository interface {
	Create(ctx context.Context, t *Tombstone) error

	// GetByExhibit returns ErrNotFound when the exhibit has no tombstone.
	GetByExhibit(ctx context.Context, workspaceID, exhibitID uuid.UUID) (*Tombstone, error)
}
