// Package auditor re-hashes stored exhibit bytes against the hashes
// recorded at ingestion and drives auto-revocation on mismatch.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/custodia-legal/custodia/internal/crypto"
	"github.com/custodia-legal/custodia/internal/domain"
	"github.com/custodia-legal/custodia/internal/ledger"
)

//nolint:gochecknoglobals // sentinel error
var ErrAccessDenied = errors.New("auditor: access denied")

const systemActor = "SYSTEM_AUDITOR"

// Ledger actions emitted by the auditor.
const (
	actionRevoked        = "EXHIBIT_INTEGRITY_REVOKED"
	actionLegallyDeleted = "EXHIBIT_LEGALLY_DELETED"
	actionVerified       = "EXHIBIT_INTEGRITY_VERIFIED"
)

// ChainVerifier is the ledger-walk dependency.
type ChainVerifier interface {
	VerifyChain(ctx context.Context, workspaceID uuid.UUID) (*ledger.ChainReport, error)
}

// EventRecorder appends audit events to the workspace ledger.
type EventRecorder interface {
	Append(ctx context.Context, workspaceID uuid.UUID, actorID, eventType, action string, details map[string]any) (*domain.AuditEvent, error)
}

// Quarantiner blocks a workspace when a breach is found.
type Quarantiner interface {
	SetQuarantine(ctx context.Context, workspaceID uuid.UUID, reason, source string, details map[string]any) error
}

// ReadResult is the outcome of a single verify-on-read check.
type ReadResult struct {
	ExhibitID    uuid.UUID `json:"exhibitId"`
	Match        bool      `json:"match"`
	RecordedHash string    `json:"recordedHash"`
	ComputedHash string    `json:"computedHash"`
}

// BatchReport is the outcome of a full-workspace audit pass. Valid is the
// chain validity ANDed with "zero new failures found".
type BatchReport struct {
	WorkspaceID    uuid.UUID `json:"workspaceId"`
	Checked        int       `json:"checked"`
	Failures       []string  `json:"failures"`
	LegallyDeleted int       `json:"legallyDeleted"`
	ChainValid     bool      `json:"chainValid"`
	Valid          bool      `json:"valid"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Auditor performs read-path and batch integrity checks. Exhibits are
// processed strictly sequentially per run and downloads pass through a
// rate limiter to cap storage bandwidth.
type Auditor struct {
	exhibits   domain.ExhibitRepository
	tombstones domain.TombstoneRepository
	alerts     domain.AlertRepository
	runs       domain.AuditRunRepository
	storage    domain.ObjectStorage
	hasher     *crypto.Hasher
	chain      ChainVerifier
	recorder   EventRecorder
	gate       Quarantiner
	limiter    *rate.Limiter
}

// New creates an Auditor. downloadsPerSecond bounds batch-audit storage
// reads; zero or negative disables the limiter.
func New(
	exhibits domain.ExhibitRepository,
	tombstones domain.TombstoneRepository,
	alerts domain.AlertRepository,
	runs domain.AuditRunRepository,
	storage domain.ObjectStorage,
	hasher *crypto.Hasher,
	chain ChainVerifier,
	recorder EventRecorder,
	gate Quarantiner,
	downloadsPerSecond float64,
) *Auditor {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if downloadsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(downloadsPerSecond), 1)
	}

	return &Auditor{
		exhibits:   exhibits,
		tombstones: tombstones,
		alerts:     alerts,
		runs:       runs,
		storage:    storage,
		hasher:     hasher,
		chain:      chain,
		recorder:   recorder,
		gate:       gate,
		limiter:    limiter,
	}
}

// VerifyOnRead re-hashes a single exhibit as it is being served. The
// matter context is mandatory: an integrity check without case scoping is
// itself a security gap, so its absence is a hard failure rather than a
// warning. On mismatch the REVOKED write must succeed or the call fails;
// the ledger event, alert, and quarantine that follow are best-effort.
func (a *Auditor) VerifyOnRead(ctx context.Context, workspaceID, exhibitID, matterID uuid.UUID) (*ReadResult, error) {
	if matterID == uuid.Nil {
		return nil, fmt.Errorf("auditor.VerifyOnRead: missing matter context: %w", ErrAccessDenied)
	}

	exhibit, err := a.exhibits.Get(ctx, workspaceID, exhibitID)
	if err != nil {
		return nil, fmt.Errorf("auditor.VerifyOnRead: %w", err)
	}
	if exhibit.MatterID != uuid.Nil && exhibit.MatterID != matterID {
		return nil, fmt.Errorf("auditor.VerifyOnRead: exhibit outside matter scope: %w", ErrAccessDenied)
	}

	data, err := a.storage.Download(ctx, exhibit.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("auditor.VerifyOnRead: download: %w", err)
	}

	computed := a.hasher.ContentHash(data)
	result := &ReadResult{
		ExhibitID:    exhibitID,
		Match:        computed == exhibit.IntegrityHash,
		RecordedHash: exhibit.IntegrityHash,
		ComputedHash: computed,
	}

	if !result.Match {
		now := time.Now().UTC()
		if err := a.exhibits.Revoke(ctx, workspaceID, exhibitID, domain.RevocationHashMismatchOnRead, now); err != nil {
			return nil, fmt.Errorf("auditor.VerifyOnRead: revoke: %w", err)
		}

		a.recordMismatch(ctx, workspaceID, exhibit, domain.RevocationHashMismatchOnRead, computed)

		if err := a.gate.SetQuarantine(ctx, workspaceID, string(domain.AlertHashMismatch), "AUTO_INTEGRITY_MONITOR", map[string]any{
			"exhibit_id": exhibitID.String(),
			"trigger":    domain.RevocationHashMismatchOnRead,
		}); err != nil {
			log.Error().Err(err).Stringer("exhibit_id", exhibitID).Msg("auditor: quarantine after read mismatch failed")
		}

		return result, nil
	}

	if err := a.exhibits.TouchVerified(ctx, workspaceID, exhibitID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Stringer("exhibit_id", exhibitID).Msg("auditor: verified_at update failed")
	}

	return result, nil
}

// ContinuousAudit re-hashes every exhibit in the workspace and revokes
// mismatches. It persists audit-run and chain-proof records on completion.
func (a *Auditor) ContinuousAudit(ctx context.Context, workspaceID uuid.UUID) (*BatchReport, error) {
	report, err := a.runBatch(ctx, workspaceID, true)
	if err != nil {
		return nil, fmt.Errorf("auditor.ContinuousAudit: %w", err)
	}

	a.persistRun(ctx, workspaceID, domain.RunContinuous, report.Valid, report.Checked, len(report.Failures), report.StartedAt, report.FinishedAt)
	a.persistRun(ctx, workspaceID, domain.RunChain, report.ChainValid, report.Checked, len(report.Failures), report.StartedAt, report.FinishedAt)

	return report, nil
}

// DeepAudit is the non-mutating preview: identical observation to
// ContinuousAudit but no revocations, ledger events, alerts, or run rows.
func (a *Auditor) DeepAudit(ctx context.Context, workspaceID uuid.UUID) (*BatchReport, error) {
	report, err := a.runBatch(ctx, workspaceID, false)
	if err != nil {
		return nil, fmt.Errorf("auditor.DeepAudit: %w", err)
	}
	return report, nil
}

// runBatch walks all exhibits sequentially. Per-exhibit storage errors are
// folded into the failure list; the batch always runs to completion.
func (a *Auditor) runBatch(ctx context.Context, workspaceID uuid.UUID, mutate bool) (*BatchReport, error) {
	report := &BatchReport{
		WorkspaceID: workspaceID,
		Failures:    []string{},
		StartedAt:   time.Now().UTC(),
	}

	exhibits, err := a.exhibits.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list exhibits: %w", err)
	}

	for _, exhibit := range exhibits {
		report.Checked++

		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}

		data, err := a.storage.Download(ctx, exhibit.StorageKey)
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("%s: download: %v", exhibit.ID, err))
			continue
		}

		computed := a.hasher.ContentHash(data)
		if computed == exhibit.IntegrityHash {
			continue
		}

		tombstone, err := a.tombstones.GetByExhibit(ctx, workspaceID, exhibit.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			report.Failures = append(report.Failures, fmt.Sprintf("%s: tombstone lookup: %v", exhibit.ID, err))
			continue
		}
		if tombstone != nil {
			// Lawfully destroyed: altered or missing bytes are expected and
			// must not revoke the exhibit.
			report.LegallyDeleted++
			if mutate {
				if _, err := a.recorder.Append(ctx, workspaceID, systemActor, "exhibit", actionLegallyDeleted, map[string]any{
					"exhibit_id":   exhibit.ID.String(),
					"tombstone_id": tombstone.ID.String(),
				}); err != nil {
					log.Warn().Err(err).Stringer("exhibit_id", exhibit.ID).Msg("auditor: legally-deleted event failed")
				}
			}
			continue
		}

		report.Failures = append(report.Failures, fmt.Sprintf("%s: hash mismatch", exhibit.ID))

		if mutate {
			if err := a.exhibits.Revoke(ctx, workspaceID, exhibit.ID, domain.RevocationHashMismatchAudit, time.Now().UTC()); err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("%s: revoke: %v", exhibit.ID, err))
				continue
			}
			a.recordMismatch(ctx, workspaceID, exhibit, domain.RevocationHashMismatchAudit, computed)
		}
	}

	chainReport, err := a.chain.VerifyChain(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("verify chain: %w", err)
	}

	report.ChainValid = chainReport.IsValid
	report.Valid = chainReport.IsValid && len(report.Failures) == 0
	report.FinishedAt = time.Now().UTC()

	return report, nil
}

// recordMismatch emits the ledger event and the critical alert for a
// revoked exhibit. Both are best-effort; the revocation already happened.
func (a *Auditor) recordMismatch(ctx context.Context, workspaceID uuid.UUID, exhibit *domain.Exhibit, reason, computed string) {
	if _, err := a.recorder.Append(ctx, workspaceID, systemActor, "exhibit", actionRevoked, map[string]any{
		"exhibit_id":    exhibit.ID.String(),
		"reason":        reason,
		"recorded_hash": exhibit.IntegrityHash,
		"computed_hash": computed,
	}); err != nil {
		log.Warn().Err(err).Stringer("exhibit_id", exhibit.ID).Msg("auditor: revocation event failed")
	}

	exists, err := a.alerts.HasUnresolvedForExhibit(ctx, workspaceID, exhibit.ID, domain.AlertHashMismatch)
	if err != nil {
		log.Warn().Err(err).Stringer("exhibit_id", exhibit.ID).Msg("auditor: alert lookup failed")
		return
	}
	if exists {
		return
	}

	exhibitID := exhibit.ID
	alert := &domain.IntegrityAlert{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		ExhibitID:   &exhibitID,
		Type:        domain.AlertHashMismatch,
		Severity:    domain.SeverityCritical,
		Message:     fmt.Sprintf("exhibit %s failed integrity verification (%s)", exhibit.ID, reason),
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.alerts.Create(ctx, alert); err != nil {
		log.Warn().Err(err).Stringer("exhibit_id", exhibit.ID).Msg("auditor: alert create failed")
	}
}

// persistRun stores a run record; failure to persist never fails the audit
// whose result it describes.
func (a *Auditor) persistRun(ctx context.Context, workspaceID uuid.UUID, kind domain.AuditRunKind, ok bool, checked, failed int, started, finished time.Time) {
	status := domain.RunSuccess
	if !ok {
		status = domain.RunFailed
	}

	run := &domain.AuditRun{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Kind:        kind,
		Status:      status,
		Checked:     checked,
		Failed:      failed,
		StartedAt:   started,
		FinishedAt:  finished,
	}
	if err := a.runs.Create(ctx, run); err != nil {
		log.Warn().Err(err).Stringer("workspace_id", workspaceID).Str("kind", string(kind)).Msg("auditor: run record failed")
	}
}
