package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-legal/custodia/internal/domain"
)

// Recorder appends hash-linked events to a workspace ledger. Each
// workspace has a single authoritative writer; the chain link is computed
// against the current head at append time.
type Recorder struct {
	repo domain.LedgerRepository
}

// NewRecorder creates a Recorder backed by the given ledger store.
func NewRecorder(repo domain.LedgerRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Append computes the next chain link and inserts the event. The first
// event of a workspace links to GenesisHash.
func (r *Recorder) Append(ctx context.Context, workspaceID uuid.UUID, actorID, eventType, action string, details map[string]any) (*domain.AuditEvent, error) {
	prevHash, err := r.repo.HeadHash(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("ledger.Recorder.Append: head: %w", err)
		}
		prevHash = GenesisHash
	}

	now := time.Now().UTC()

	hash, err := EventHash(prevHash, now, actorID, action, details)
	if err != nil {
		return nil, fmt.Errorf("ledger.Recorder.Append: %w", err)
	}

	event := &domain.AuditEvent{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		EventType:   eventType,
		Action:      action,
		Details:     details,
		PrevHash:    prevHash,
		Hash:        hash,
		CreatedAt:   now,
	}

	if err := r.repo.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("ledger.Recorder.Append: insert: %w", err)
	}

	return event, nil
}
