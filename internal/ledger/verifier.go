package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-legal/custodia/internal/domain"
)

// Finding reasons reported in a ChainReport.
const (
	ReasonHashMismatch = "Hash Mismatch"
	ReasonChainBreak   = "Chain Break"
)

const defaultBatchSize = 1000

// Finding flags one tampered ledger entry. At most one finding is
// reported per event; a simultaneous bad hash and bad link reports the
// hash mismatch.
type Finding struct {
	EventID uuid.UUID `json:"eventId"`
	Reason  string    `json:"reason"`
}

// ChainReport is the complete result of walking one workspace chain.
// Findings are data, not errors: a verification call always covers the
// whole ledger it observed.
type ChainReport struct {
	WorkspaceID uuid.UUID `json:"workspaceId"`
	IsValid     bool      `json:"isValid"`
	EventCount  int       `json:"eventCount"`
	HeadHash    string    `json:"headHash"`
	Tampered    []Finding `json:"tamperedEntries"`
}

// Verifier walks workspace ledgers and validates every link and content
// hash. It holds no locks and is read-only; it reports on exactly the
// historical prefix of rows it observed, which makes it safe to run while
// new events are being appended.
type Verifier struct {
	repo      domain.LedgerRepository
	batchSize int
}

// NewVerifier creates a Verifier with the default batch size.
func NewVerifier(repo domain.LedgerRepository) *Verifier {
	return &Verifier{repo: repo, batchSize: defaultBatchSize}
}

// VerifyChain validates the full ledger of a workspace in fixed-size
// batches. After a failed event the verifier carries BOTH the stored hash
// and the recomputed hash as acceptable link bases for the next event:
// mutated content leaves the stored hash as the true lineage, a mutated
// hash field leaves the recomputed one, and accepting either means one
// corrupted row yields exactly one finding instead of cascading into every
// later row. The call is idempotent on unchanged data.
func (v *Verifier) VerifyChain(ctx context.Context, workspaceID uuid.UUID) (*ChainReport, error) {
	report := &ChainReport{
		WorkspaceID: workspaceID,
		HeadHash:    GenesisHash,
		Tampered:    []Finding{},
	}

	prevStored := GenesisHash
	prevComputed := GenesisHash
	pager := newPager(v.repo, workspaceID, v.batchSize)

	for {
		events, err := pager.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger.Verifier.VerifyChain: %w", err)
		}
		if len(events) == 0 {
			break
		}

		for _, event := range events {
			report.EventCount++

			expectedComputed, err := EventHash(prevComputed, event.CreatedAt, event.ActorID, event.Action, event.Details)
			if err != nil {
				return nil, fmt.Errorf("ledger.Verifier.VerifyChain: event %s: %w", event.ID, err)
			}
			expectedStored := expectedComputed
			if prevStored != prevComputed {
				expectedStored, err = EventHash(prevStored, event.CreatedAt, event.ActorID, event.Action, event.Details)
				if err != nil {
					return nil, fmt.Errorf("ledger.Verifier.VerifyChain: event %s: %w", event.ID, err)
				}
			}

			hashOK := event.Hash == expectedComputed || event.Hash == expectedStored
			linkOK := event.PrevHash == prevComputed || event.PrevHash == prevStored

			switch {
			case !hashOK:
				report.Tampered = append(report.Tampered, Finding{EventID: event.ID, Reason: ReasonHashMismatch})
			case !linkOK:
				report.Tampered = append(report.Tampered, Finding{EventID: event.ID, Reason: ReasonChainBreak})
			}

			prevStored = event.Hash
			if hashOK {
				prevComputed = event.Hash
			} else {
				prevComputed = expectedComputed
			}
			report.HeadHash = event.Hash
		}
	}

	report.IsValid = len(report.Tampered) == 0
	return report, nil
}

// pager yields ordered batches of ledger events via cursor continuation.
// It never issues an unbounded query, so verification scales to
// arbitrarily large ledgers.
type pager struct {
	repo        domain.LedgerRepository
	workspaceID uuid.UUID
	limit       int
	cursor      *domain.LedgerCursor
	done        bool
}

func newPager(repo domain.LedgerRepository, workspaceID uuid.UUID, limit int) *pager {
	return &pager{repo: repo, workspaceID: workspaceID, limit: limit}
}

// Next returns the next batch in (created_at, id) order, or an empty slice
// once the prefix observed at the first call is exhausted.
func (p *pager) Next(ctx context.Context) ([]*domain.AuditEvent, error) {
	if p.done {
		return nil, nil
	}

	events, err := p.repo.Page(ctx, p.workspaceID, p.cursor, p.limit)
	if err != nil {
		return nil, fmt.Errorf("page after %v: %w", p.cursor, err)
	}

	if len(events) < p.limit {
		p.done = true
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		p.cursor = &domain.LedgerCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return events, nil
}
