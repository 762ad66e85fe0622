// Package ledger implements the hash-linked audit ledger: appending new
// events with correct chain links and verifying entire workspace chains.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-legal/custodia/internal/crypto"
)

// GenesisHash is the prev_hash of the first event in every workspace ledger.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// isoMillis is the timestamp layout hashed into each event link. Ledger
// rows were originally written with millisecond-precision UTC timestamps;
// the layout is frozen so historical chains keep verifying.
const isoMillis = "2006-01-02T15:04:05.000Z"

// EventHash computes the link hash for one ledger event:
// sha256(prevHash | createdAtISO | actorID | action | canonicalDetails).
func EventHash(prevHash string, createdAt time.Time, actorID, action string, details map[string]any) (string, error) {
	canonical, err := crypto.CanonicalJSON(details)
	if err != nil {
		return "", fmt.Errorf("ledger.EventHash: %w", err)
	}

	preimage := strings.Join([]string{
		prevHash,
		createdAt.UTC().Format(isoMillis),
		actorID,
		action,
		string(canonical),
	}, "|")

	sum := sha256.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:]), nil
}
