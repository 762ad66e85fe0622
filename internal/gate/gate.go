// Package gate implements the per-workspace quarantine state machine
// consulted before sensitive operations. A workspace is either OPEN or
// BLOCKED; blocking comes from an explicit quarantine preference, an
// unresolved critical integrity alert, or stale integrity proofs when
// strict mode is on.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/custodia-legal/custodia/internal/domain"
)

// Quarantine sources recorded on preferences.
const (
	SourceManual      = "MANUAL"
	SourceAutoMonitor = "AUTO_INTEGRITY_MONITOR"
)

// ReasonIntegrityStale blocks a workspace whose audit or chain proofs are
// missing, failed, or older than the configured max age.
const ReasonIntegrityStale = "INTEGRITY_STALE"

// Ledger actions emitted on state transitions.
const (
	actionQuarantineSet     = "INTEGRITY_QUARANTINE_SET"
	actionQuarantineCleared = "INTEGRITY_QUARANTINE_CLEARED"
)

// Decision is the gate's answer for one workspace.
type Decision struct {
	Blocked bool           `json:"blocked"`
	Reason  string         `json:"reason,omitempty"`
	Source  string         `json:"source,omitempty"`
	SetAt   time.Time      `json:"setAt,omitzero"`
	Details map[string]any `json:"details,omitempty"`
}

// EventRecorder appends audit events to the workspace ledger.
type EventRecorder interface {
	Append(ctx context.Context, workspaceID uuid.UUID, actorID, eventType, action string, details map[string]any) (*domain.AuditEvent, error)
}

// Broadcaster pushes state-transition notifications to interested
// listeners. Calls are fire-and-forget: implementations must not block
// and the gate never fails a transition on a broadcast error.
type Broadcaster interface {
	Broadcast(ctx context.Context, workspaceID uuid.UUID, kind string, payload map[string]any)
}

// Config controls strict mode and caching.
type Config struct {
	CacheTTL time.Duration

	// StrictMode requires fresh integrity proofs before opening any gate.
	StrictMode bool

	// StrictWorkspaces enables strict mode for specific workspaces even
	// when the global default is off.
	StrictWorkspaces map[uuid.UUID]bool

	// MaxProofAge is the oldest acceptable successful audit run and chain
	// proof under strict mode.
	MaxProofAge time.Duration
}

// Gate evaluates and mutates workspace quarantine state.
type Gate struct {
	prefs     domain.QuarantineRepository
	alerts    domain.AlertRepository
	runs      domain.AuditRunRepository
	recorder  EventRecorder
	broadcast Broadcaster
	cache     *decisionCache
	cfg       Config
}

// New creates a Gate. now may be nil for the wall clock; tests inject a
// fake clock to control cache expiry.
func New(prefs domain.QuarantineRepository, alerts domain.AlertRepository, runs domain.AuditRunRepository, recorder EventRecorder, broadcast Broadcaster, cfg Config, now func() time.Time) *Gate {
	return &Gate{
		prefs:     prefs,
		alerts:    alerts,
		runs:      runs,
		recorder:  recorder,
		broadcast: broadcast,
		cache:     newDecisionCache(cfg.CacheTTL, now),
		cfg:       cfg,
	}
}

// SetQuarantine blocks the workspace. The preference write is the primary
// state change and its error is returned; the cache invalidation, ledger
// event, and broadcast follow it and are best-effort.
func (g *Gate) SetQuarantine(ctx context.Context, workspaceID uuid.UUID, reason, source string, details map[string]any) error {
	pref := &domain.QuarantinePreference{
		WorkspaceID: workspaceID,
		Reason:      reason,
		Source:      source,
		Details:     details,
		SetAt:       time.Now().UTC(),
	}

	if err := g.prefs.Set(ctx, pref); err != nil {
		return fmt.Errorf("gate.SetQuarantine: %w", err)
	}

	g.cache.invalidate(workspaceID)

	if _, err := g.recorder.Append(ctx, workspaceID, source, "integrity", actionQuarantineSet, map[string]any{
		"reason": reason,
		"source": source,
	}); err != nil {
		log.Warn().Err(err).Stringer("workspace_id", workspaceID).Msg("gate: quarantine set but ledger event failed")
	}

	g.notify(ctx, workspaceID, actionQuarantineSet, map[string]any{"reason": reason, "source": source})

	return nil
}

// ClearQuarantine unblocks the workspace.
func (g *Gate) ClearQuarantine(ctx context.Context, workspaceID uuid.UUID, reason string) error {
	if err := g.prefs.Clear(ctx, workspaceID); err != nil {
		return fmt.Errorf("gate.ClearQuarantine: %w", err)
	}

	g.cache.invalidate(workspaceID)

	if _, err := g.recorder.Append(ctx, workspaceID, SourceManual, "integrity", actionQuarantineCleared, map[string]any{
		"reason": reason,
	}); err != nil {
		log.Warn().Err(err).Stringer("workspace_id", workspaceID).Msg("gate: quarantine cleared but ledger event failed")
	}

	g.notify(ctx, workspaceID, actionQuarantineCleared, map[string]any{"reason": reason})

	return nil
}

// Check returns the gate decision for a workspace. Decisions are cached
// under the configured TTL; on a miss the evaluation order is: explicit
// preference, unresolved critical alerts (which auto-quarantine), strict
// staleness, then OPEN. Every branch caches its decision before returning.
func (g *Gate) Check(ctx context.Context, workspaceID uuid.UUID) (Decision, error) {
	if decision, ok := g.cache.get(workspaceID); ok {
		return decision, nil
	}

	// 1. Explicit quarantine preference.
	pref, err := g.prefs.Get(ctx, workspaceID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Decision{}, fmt.Errorf("gate.Check: preference: %w", err)
	}
	if pref != nil {
		decision := Decision{
			Blocked: true,
			Reason:  pref.Reason,
			Source:  pref.Source,
			SetAt:   pref.SetAt,
			Details: pref.Details,
		}
		g.cache.set(workspaceID, decision)
		return decision, nil
	}

	// 2. Unresolved critical alerts escalate to a real quarantine.
	alert, err := g.alerts.FirstUnresolvedCritical(ctx, workspaceID, domain.QuarantineTriggerTypes())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Decision{}, fmt.Errorf("gate.Check: alerts: %w", err)
	}
	if alert != nil {
		details := map[string]any{"alert_id": alert.ID.String(), "alert_type": string(alert.Type)}
		if err := g.SetQuarantine(ctx, workspaceID, string(alert.Type), SourceAutoMonitor, details); err != nil {
			// The workspace is still reported blocked; only the persisted
			// escalation failed.
			log.Error().Err(err).Stringer("workspace_id", workspaceID).Msg("gate: auto-quarantine write failed")
		}
		decision := Decision{
			Blocked: true,
			Reason:  string(alert.Type),
			Source:  SourceAutoMonitor,
			SetAt:   time.Now().UTC(),
			Details: details,
		}
		g.cache.set(workspaceID, decision)
		return decision, nil
	}

	// 3. Strict mode: require fresh integrity proofs.
	if g.strictEnabled(workspaceID) {
		stale, details, err := g.proofsStale(ctx, workspaceID)
		if err != nil {
			return Decision{}, fmt.Errorf("gate.Check: proofs: %w", err)
		}
		if stale {
			decision := Decision{
				Blocked: true,
				Reason:  ReasonIntegrityStale,
				Source:  SourceAutoMonitor,
				SetAt:   time.Now().UTC(),
				Details: details,
			}
			g.cache.set(workspaceID, decision)
			return decision, nil
		}
	}

	decision := Decision{Blocked: false}
	g.cache.set(workspaceID, decision)
	return decision, nil
}

func (g *Gate) strictEnabled(workspaceID uuid.UUID) bool {
	if g.cfg.StrictMode {
		return true
	}
	return g.cfg.StrictWorkspaces[workspaceID]
}

// proofsStale checks the newest continuous audit run and chain proof.
// Either one missing, failed, or older than MaxProofAge blocks the gate.
func (g *Gate) proofsStale(ctx context.Context, workspaceID uuid.UUID) (bool, map[string]any, error) {
	now := time.Now().UTC()
	details := map[string]any{}
	stale := false

	audit, err := g.runs.LatestByKind(ctx, workspaceID, domain.RunContinuous)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		stale = true
		details["audit"] = "never run"
	case err != nil:
		return false, nil, err
	case audit.Status != domain.RunSuccess:
		stale = true
		details["audit"] = "last run failed"
	case now.Sub(audit.FinishedAt) > g.cfg.MaxProofAge:
		stale = true
		details["audit_age"] = now.Sub(audit.FinishedAt).String()
	default:
		details["audit_age"] = now.Sub(audit.FinishedAt).String()
	}

	proof, err := g.runs.LatestByKind(ctx, workspaceID, domain.RunChain)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		stale = true
		details["chain_proof"] = "never run"
	case err != nil:
		return false, nil, err
	case proof.Status != domain.RunSuccess:
		stale = true
		details["chain_proof"] = "last run failed"
	case now.Sub(proof.FinishedAt) > g.cfg.MaxProofAge:
		stale = true
		details["chain_proof_age"] = now.Sub(proof.FinishedAt).String()
	default:
		details["chain_proof_age"] = now.Sub(proof.FinishedAt).String()
	}

	return stale, details, nil
}

func (g *Gate) notify(ctx context.Context, workspaceID uuid.UUID, kind string, payload map[string]any) {
	if g.broadcast == nil {
		return
	}
	g.broadcast.Broadcast(ctx, workspaceID, kind, payload)
}
