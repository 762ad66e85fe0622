package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AlertType classifies an integrity alert.
type AlertType string

const (
	AlertChainBreak             AlertType = "CHAIN_BREAK"
	AlertHashMismatch           AlertType = "HASH_MISMATCH"
	AlertSystemIntegrityFailure AlertType = "SYSTEM_INTEGRITY_FAILURE"
)

// AlertSeverity ranks an alert. Unresolved CRITICAL alerts of the
// quarantine-trigger types auto-block the workspace.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "CRITICAL"
	SeverityWarning  AlertSeverity = "WARNING"
)

// QuarantineTriggerTypes are the alert types that auto-quarantine a
// workspace while unresolved at CRITICAL severity.
func QuarantineTriggerTypes() []AlertType {
	return []AlertType{AlertChainBreak, AlertHashMismatch, AlertSystemIntegrityFailure}
}

type IntegrityAlert struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ExhibitID   *uuid.UUID
	Type        AlertType
	Severity    AlertSeverity
	Message     string
	Resolved    bool
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

type AlertRepository interface {
	Create(ctx context.Context, a *IntegrityAlert) error

	// FirstUnresolvedCritical returns the oldest unresolved CRITICAL alert of
	// any of the given types, or ErrNotFound.
	FirstUnresolvedCritical(ctx context.Context, workspaceID uuid.UUID, types []AlertType) (*IntegrityAlert, error)

	// HasUnresolvedForExhibit reports whether an unresolved alert of the given
	// type already exists for the exhibit.
	HasUnresolvedForExhibit(ctx context.Context, workspaceID, exhibitID uuid.UUID, typ AlertType) (bool, error)

	Resolve(ctx context.Context, workspaceID, id uuid.UUID) error
}
