package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Certificate is the human-readable integrity attestation for a
// workspace: chain verification outcome, asset counts, and either a
// signature block or an explicit unsigned notice.
type Certificate struct {
	WorkspaceID   uuid.UUID
	GeneratedAt   time.Time
	Passed        bool
	EventCount    int
	HeadHash      string
	AssetsChecked int
	AssetsFailed  int
	Signature     SignatureBundle
}

// Render produces the certificate document.
func (c Certificate) Render() string {
	var b strings.Builder

	status := "PASS"
	if !c.Passed {
		status = "FAIL"
	}

	b.WriteString("EVIDENCE INTEGRITY CERTIFICATE\n")
	b.WriteString("==============================\n\n")
	fmt.Fprintf(&b, "Workspace:        %s\n", c.WorkspaceID)
	fmt.Fprintf(&b, "Generated:        %s\n", c.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Status:           %s\n\n", status)
	fmt.Fprintf(&b, "Ledger events:    %d\n", c.EventCount)
	fmt.Fprintf(&b, "Ledger head hash: %s\n", c.HeadHash)
	fmt.Fprintf(&b, "Assets checked:   %d\n", c.AssetsChecked)
	fmt.Fprintf(&b, "Assets failed:    %d\n\n", c.AssetsFailed)

	if c.Signature.Status == SignatureSigned {
		b.WriteString("SIGNATURE\n")
		b.WriteString("---------\n")
		fmt.Fprintf(&b, "Algorithm:   %s\n", c.Signature.Algorithm)
		fmt.Fprintf(&b, "Key ID:      %s\n", c.Signature.SignerKeyID)
		fmt.Fprintf(&b, "Signature:   %s\n", c.Signature.SignatureB64)
	} else {
		b.WriteString("UNSIGNED\n")
		b.WriteString("--------\n")
		b.WriteString("No signing key was available when this certificate was\n")
		b.WriteString("generated. The hashes above remain independently verifiable\n")
		b.WriteString("against the workspace ledger.\n")
	}

	return b.String()
}
