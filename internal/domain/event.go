package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one entry in a workspace's append-only, hash-linked ledger.
// Hash covers (PrevHash, CreatedAt, ActorID, Action, Details); PrevHash of
// entry n equals Hash of entry n-1 in (CreatedAt, ID) order. Events are
// never mutated or deleted after insert.
type AuditEvent struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ActorID     string
	EventType   string // "integrity", "export", "exhibit", etc.
	Action      string
	Details     map[string]any
	PrevHash    string
	Hash        string
	CreatedAt   time.Time
}

// LedgerCursor marks a position in the (created_at, id) ordering of a
// workspace ledger. A nil cursor means "start from the beginning".
type LedgerCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// LedgerRepository is the append-only event store.
type LedgerRepository interface {
	Insert(ctx context.Context, event *AuditEvent) error

	// HeadHash returns the hash of the newest event in the workspace ledger.
	// Returns ErrNotFound for an empty ledger.
	HeadHash(ctx context.Context, workspaceID uuid.UUID) (string, error)

	// Page returns up to limit events strictly after the cursor, ordered by
	// (created_at asc, id asc). The page reflects a historical prefix of the
	// ledger; concurrent appends land after any cursor already handed out.
	Page(ctx context.Context, workspaceID uuid.UUID, after *LedgerCursor, limit int) ([]*AuditEvent, error)
}
