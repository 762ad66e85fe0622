package export

import (
	"fmt"
	"sort"

	"github.com/custodia-legal/custodia/internal/crypto"
)

// SourceSpan ties a claim to a byte range inside an evidence anchor.
type SourceSpan struct {
	AnchorID string `json:"anchorId"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// ClaimProof is a derived assertion tied to one or more evidence anchors.
// Proofs are embedded in export bundles with a content hash so reviewers
// can check that the assertion was not edited after generation.
type ClaimProof struct {
	ID          string       `json:"id"`
	Claim       string       `json:"claim"`
	AnchorIDs   []string     `json:"anchorIds"`
	SourceSpans []SourceSpan `json:"sourceSpans"`
}

// Normalize returns a copy with all array-valued fields in canonical
// order, so semantically identical proofs hash identically regardless of
// the order their anchors were generated in.
func (p ClaimProof) Normalize() ClaimProof {
	normalized := p

	normalized.AnchorIDs = append([]string(nil), p.AnchorIDs...)
	sort.Strings(normalized.AnchorIDs)

	normalized.SourceSpans = append([]SourceSpan(nil), p.SourceSpans...)
	sort.Slice(normalized.SourceSpans, func(i, j int) bool {
		a, b := normalized.SourceSpans[i], normalized.SourceSpans[j]
		if a.AnchorID != b.AnchorID {
			return a.AnchorID < b.AnchorID
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})

	return normalized
}

// Hash returns the content hash of the normalized canonical serialization.
func (p ClaimProof) Hash(hasher *crypto.Hasher) (string, error) {
	canonical, err := crypto.CanonicalJSON(p.Normalize())
	if err != nil {
		return "", fmt.Errorf("export.ClaimProof.Hash: %w", err)
	}
	return hasher.ContentHash(canonical), nil
}
