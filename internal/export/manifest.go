// Package export builds signed, tamper-evident proof bundles from ledger
// and asset state: integrity certificates and ZIP evidence packages with
// self-verifying manifests.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/custodia-legal/custodia/internal/crypto"
)

// Signature statuses recorded in manifests and bundles.
const (
	SignatureSigned   = "signed"
	SignatureUnsigned = "unsigned"
)

// Integrity modes recorded in manifests.
const (
	ModeSigned   = "signed"
	ModeHashOnly = "hash-only"
)

// ManifestEntry describes one file in a package.
type ManifestEntry struct {
	Path      string    `json:"path"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// IntegrityInfo labels the trust level of the whole bundle. A missing
// signer is an explicit, recorded state, never a silent one.
type IntegrityInfo struct {
	Mode            string `json:"mode"`
	SignatureStatus string `json:"signatureStatus"`
	Algorithm       string `json:"algorithm,omitempty"`
	SignerKeyID     string `json:"signerKeyId,omitempty"`
}

// SignatureBundle is the detached signature written alongside a manifest.
type SignatureBundle struct {
	Status       string `json:"status"`
	SignatureB64 string `json:"signatureB64,omitempty"`
	Algorithm    string `json:"algorithm,omitempty"`
	SignerKeyID  string `json:"signerKeyId,omitempty"`
}

// Manifest is the generated (not persisted) file inventory of a package.
// ManifestHash is computed over the manifest serialized with that very
// field empty, then injected; verification re-blanks the field, re-hashes,
// and compares.
type Manifest struct {
	WorkspaceID  string          `json:"workspaceId"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	Files        []ManifestEntry `json:"files"`
	Integrity    IntegrityInfo   `json:"integrity"`
	ManifestHash string          `json:"manifestHash"`
}

// ManifestBuilder assembles a manifest in two phases: Add entries, then
// Finalize to compute the self-excluded hash and re-serialize. Anything
// signed or listed downstream must use the final bytes Finalize returns.
type ManifestBuilder struct {
	manifest Manifest
}

// NewManifestBuilder starts a manifest for a workspace.
func NewManifestBuilder(workspaceID string, integrity IntegrityInfo, now time.Time) *ManifestBuilder {
	return &ManifestBuilder{
		manifest: Manifest{
			WorkspaceID: workspaceID,
			GeneratedAt: now.UTC(),
			Files:       []ManifestEntry{},
			Integrity:   integrity,
		},
	}
}

// Add appends a file entry.
func (b *ManifestBuilder) Add(path, sha256Hex string, size int64, createdAt time.Time) {
	b.manifest.Files = append(b.manifest.Files, ManifestEntry{
		Path:      path,
		SHA256:    sha256Hex,
		Size:      size,
		CreatedAt: createdAt.UTC(),
	})
}

// Finalize computes the manifest hash over the hash-blanked canonical
// serialization, injects it, and returns the manifest together with its
// final canonical bytes.
func (b *ManifestBuilder) Finalize() (*Manifest, []byte, error) {
	b.manifest.ManifestHash = ""

	blanked, err := crypto.CanonicalJSON(b.manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("export.ManifestBuilder.Finalize: %w", err)
	}

	sum := sha256.Sum256(blanked)
	b.manifest.ManifestHash = hex.EncodeToString(sum[:])

	final, err := crypto.CanonicalJSON(b.manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("export.ManifestBuilder.Finalize: re-serialize: %w", err)
	}

	manifest := b.manifest
	return &manifest, final, nil
}

// VerifyManifestHash recomputes a manifest's self-excluded hash and
// reports whether it matches the embedded value.
func VerifyManifestHash(m Manifest) (bool, error) {
	claimed := m.ManifestHash
	m.ManifestHash = ""

	blanked, err := crypto.CanonicalJSON(m)
	if err != nil {
		return false, fmt.Errorf("export.VerifyManifestHash: %w", err)
	}

	sum := sha256.Sum256(blanked)
	return hex.EncodeToString(sum[:]) == claimed, nil
}
