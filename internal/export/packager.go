package export

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/custodia-legal/custodia/internal/crypto"
	"github.com/custodia-legal/custodia/internal/domain"
	"github.com/custodia-legal/custodia/internal/ledger"
)

//nolint:gochecknoglobals // sentinel error
var ErrExportHashMismatch = errors.New("export: exhibit hash mismatch at packaging time")

const exportActor = "SYSTEM_EXPORT"

const actionExportPacket = "EXPORT_PACKET"

// ChainVerifier is the ledger-walk dependency.
type ChainVerifier interface {
	VerifyChain(ctx context.Context, workspaceID uuid.UUID) (*ledger.ChainReport, error)
}

// EventRecorder appends audit events to the workspace ledger.
type EventRecorder interface {
	Append(ctx context.Context, workspaceID uuid.UUID, actorID, eventType, action string, details map[string]any) (*domain.AuditEvent, error)
}

// PackageOptions selects what goes into a proof bundle.
type PackageOptions struct {
	// ExhibitIDs limits the bundle to specific exhibits; empty means every
	// exhibit in the workspace.
	ExhibitIDs []uuid.UUID

	// MatterID, when set, restricts the bundle to one matter.
	MatterID uuid.UUID

	// ClaimProofs are embedded (normalized and hashed) in claims.json.
	ClaimProofs []ClaimProof

	// IncludeVerificationKey adds verification_key.pem to signed bundles.
	IncludeVerificationKey bool
}

// PackageResult summarizes a built bundle.
type PackageResult struct {
	Manifest  *Manifest
	Signature SignatureBundle
	FileCount int
}

// Packager builds exportable, independently verifiable bundles. A bundle
// is either fully signed or explicitly hash-only: signer failure degrades
// the whole package, it never aborts it. Exhibit content that no longer
// matches its recorded hash does abort packaging; shipping unverifiable
// evidence is worse than failing the export.
type Packager struct {
	exhibits domain.ExhibitRepository
	storage  domain.ObjectStorage
	hasher   *crypto.Hasher
	signer   crypto.Signer
	chain    ChainVerifier
	recorder EventRecorder
}

// NewPackager creates a Packager. signer may be crypto.NoSigner{}.
func NewPackager(exhibits domain.ExhibitRepository, storage domain.ObjectStorage, hasher *crypto.Hasher, signer crypto.Signer, chain ChainVerifier, recorder EventRecorder) *Packager {
	return &Packager{
		exhibits: exhibits,
		storage:  storage,
		hasher:   hasher,
		signer:   signer,
		chain:    chain,
		recorder: recorder,
	}
}

// BuildPackage writes a ZIP bundle to w: verified evidence files,
// manifest.json with a self-excluded manifest hash, a signature bundle or
// unsigned notice, and a human-readable verification protocol.
func (p *Packager) BuildPackage(ctx context.Context, workspaceID uuid.UUID, opts PackageOptions, w io.Writer) (*PackageResult, error) {
	integrity, signerOK := p.probeSigner()

	exhibits, err := p.selectExhibits(ctx, workspaceID, opts)
	if err != nil {
		return nil, fmt.Errorf("export.BuildPackage: %w", err)
	}

	now := time.Now().UTC()
	zw := zip.NewWriter(w)
	builder := NewManifestBuilder(workspaceID.String(), integrity, now)
	fileCount := 0

	for _, exhibit := range exhibits {
		data, err := p.storage.Download(ctx, exhibit.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("export.BuildPackage: download %s: %w", exhibit.ID, err)
		}

		// Every raw file is re-hashed at packaging time against the hash
		// recorded at ingestion.
		if p.hasher.ContentHash(data) != exhibit.IntegrityHash {
			return nil, fmt.Errorf("export.BuildPackage: exhibit %s: %w", exhibit.ID, ErrExportHashMismatch)
		}

		entryPath := path.Join("evidence", exhibit.ID.String()+"_"+exhibit.FileName)
		if err := writeZipFile(zw, entryPath, data); err != nil {
			return nil, fmt.Errorf("export.BuildPackage: %w", err)
		}

		builder.Add(entryPath, sha256Hex(data), int64(len(data)), exhibit.CreatedAt)
		fileCount++
	}

	if len(opts.ClaimProofs) > 0 {
		claimsData, err := p.renderClaims(opts.ClaimProofs)
		if err != nil {
			return nil, fmt.Errorf("export.BuildPackage: %w", err)
		}
		if err := writeZipFile(zw, "claims.json", claimsData); err != nil {
			return nil, fmt.Errorf("export.BuildPackage: %w", err)
		}
		builder.Add("claims.json", sha256Hex(claimsData), int64(len(claimsData)), now)
		fileCount++
	}

	manifest, manifestBytes, err := builder.Finalize()
	if err != nil {
		return nil, fmt.Errorf("export.BuildPackage: %w", err)
	}
	if err := writeZipFile(zw, "manifest.json", manifestBytes); err != nil {
		return nil, fmt.Errorf("export.BuildPackage: %w", err)
	}

	// The signature covers the final manifest bytes, hash already injected.
	signature := p.signManifest(manifestBytes, signerOK)
	sigBytes, err := json.MarshalIndent(signature, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export.BuildPackage: marshal signature: %w", err)
	}
	if err := writeZipFile(zw, "manifest.sig", sigBytes); err != nil {
		return nil, fmt.Errorf("export.BuildPackage: %w", err)
	}

	if signature.Status == SignatureSigned && opts.IncludeVerificationKey {
		pemBytes, err := p.signer.PublicKeyPEM()
		if err == nil {
			if err := writeZipFile(zw, "verification_key.pem", pemBytes); err != nil {
				return nil, fmt.Errorf("export.BuildPackage: %w", err)
			}
		} else {
			log.Warn().Err(err).Msg("export: verification key unavailable, omitted from bundle")
		}
	}

	if err := writeZipFile(zw, "VERIFICATION_PROTOCOL.txt", []byte(verificationProtocol(signature.Status))); err != nil {
		return nil, fmt.Errorf("export.BuildPackage: %w", err)
	}
	if signature.Status == SignatureUnsigned {
		if err := writeZipFile(zw, "UNSIGNED_NOTICE.txt", []byte(unsignedNotice)); err != nil {
			return nil, fmt.Errorf("export.BuildPackage: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export.BuildPackage: close archive: %w", err)
	}

	if _, err := p.recorder.Append(ctx, workspaceID, exportActor, "export", actionExportPacket, map[string]any{
		"file_count":       fileCount,
		"manifest_hash":    manifest.ManifestHash,
		"signature_status": signature.Status,
	}); err != nil {
		log.Warn().Err(err).Stringer("workspace_id", workspaceID).Msg("export: packet event failed")
	}

	return &PackageResult{Manifest: manifest, Signature: signature, FileCount: fileCount}, nil
}

// BuildCertificate verifies the chain and renders a signed (or explicitly
// unsigned) integrity certificate.
func (p *Packager) BuildCertificate(ctx context.Context, workspaceID uuid.UUID, assetsChecked, assetsFailed int) (*Certificate, error) {
	report, err := p.chain.VerifyChain(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("export.BuildCertificate: %w", err)
	}

	cert := &Certificate{
		WorkspaceID:   workspaceID,
		GeneratedAt:   time.Now().UTC(),
		Passed:        report.IsValid && assetsFailed == 0,
		EventCount:    report.EventCount,
		HeadHash:      report.HeadHash,
		AssetsChecked: assetsChecked,
		AssetsFailed:  assetsFailed,
		Signature:     SignatureBundle{Status: SignatureUnsigned},
	}

	_, signerOK := p.probeSigner()
	if signerOK {
		payload, err := crypto.CanonicalJSON(map[string]any{
			"workspaceId":   workspaceID.String(),
			"generatedAt":   cert.GeneratedAt.Format(time.RFC3339),
			"passed":        cert.Passed,
			"eventCount":    cert.EventCount,
			"headHash":      cert.HeadHash,
			"assetsChecked": assetsChecked,
			"assetsFailed":  assetsFailed,
		})
		if err != nil {
			return nil, fmt.Errorf("export.BuildCertificate: %w", err)
		}
		cert.Signature = p.signManifest(payload, true)
	}

	return cert, nil
}

// probeSigner decides once per build whether the bundle is signed or
// hash-only. Degradation is explicit and recorded, never silent.
func (p *Packager) probeSigner() (IntegrityInfo, bool) {
	if err := crypto.Probe(p.signer); err != nil {
		log.Warn().Err(err).Msg("export: signer unavailable, building hash-only bundle")
		return IntegrityInfo{Mode: ModeHashOnly, SignatureStatus: SignatureUnsigned}, false
	}

	fingerprint, err := p.signer.Fingerprint()
	if err != nil {
		return IntegrityInfo{Mode: ModeHashOnly, SignatureStatus: SignatureUnsigned}, false
	}

	return IntegrityInfo{
		Mode:            ModeSigned,
		SignatureStatus: SignatureSigned,
		Algorithm:       p.signer.Algorithm(),
		SignerKeyID:     fingerprint,
	}, true
}

func (p *Packager) signManifest(finalBytes []byte, signerOK bool) SignatureBundle {
	if !signerOK {
		return SignatureBundle{Status: SignatureUnsigned}
	}

	sig, err := p.signer.Sign(finalBytes)
	if err != nil {
		log.Warn().Err(err).Msg("export: signing failed, falling back to unsigned")
		return SignatureBundle{Status: SignatureUnsigned}
	}

	fingerprint, err := p.signer.Fingerprint()
	if err != nil {
		return SignatureBundle{Status: SignatureUnsigned}
	}

	return SignatureBundle{
		Status:       SignatureSigned,
		SignatureB64: sig,
		Algorithm:    p.signer.Algorithm(),
		SignerKeyID:  fingerprint,
	}
}

func (p *Packager) selectExhibits(ctx context.Context, workspaceID uuid.UUID, opts PackageOptions) ([]*domain.Exhibit, error) {
	var (
		exhibits []*domain.Exhibit
		err      error
	)

	if len(opts.ExhibitIDs) > 0 {
		exhibits, err = p.exhibits.ListByIDs(ctx, workspaceID, opts.ExhibitIDs)
	} else {
		exhibits, err = p.exhibits.ListByWorkspace(ctx, workspaceID)
	}
	if err != nil {
		return nil, fmt.Errorf("select exhibits: %w", err)
	}

	if opts.MatterID == uuid.Nil {
		return exhibits, nil
	}

	filtered := exhibits[:0]
	for _, e := range exhibits {
		if e.MatterID == opts.MatterID {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// renderClaims normalizes each proof and pairs it with its content hash.
func (p *Packager) renderClaims(proofs []ClaimProof) ([]byte, error) {
	type hashedProof struct {
		ClaimProof
		ProofHash string `json:"proofHash"`
	}

	hashed := make([]hashedProof, 0, len(proofs))
	for _, proof := range proofs {
		h, err := proof.Hash(p.hasher)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", proof.ID, err)
		}
		hashed = append(hashed, hashedProof{ClaimProof: proof.Normalize(), ProofHash: h})
	}

	data, err := json.MarshalIndent(hashed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal claims: %w", err)
	}
	return data, nil
}

func writeZipFile(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

const unsignedNotice = `UNSIGNED BUNDLE NOTICE
======================

No signing key was available when this package was built. The package
was produced in hash-only mode: every file listed in manifest.json is
still content-hashed and the manifest carries its own self-excluded
hash, but there is no cryptographic signature binding the manifest to a
signer identity. Treat chain-of-custody claims accordingly.
`

func verificationProtocol(signatureStatus string) string {
	base := `VERIFICATION PROTOCOL
=====================

1. Unpack the archive and read manifest.json.
2. For every entry under "files", recompute the SHA-256 of the named
   file and compare it to the recorded "sha256" value.
3. Copy manifest.json, blank the "manifestHash" field, serialize the
   result as canonical JSON (object keys sorted recursively), and
   compare its SHA-256 to the recorded "manifestHash".
`

	if signatureStatus == SignatureSigned {
		return base + `4. Verify manifest.sig: the base64 signature covers the exact bytes
   of manifest.json as shipped, using the algorithm and key identified
   in the signature bundle (verification_key.pem when included).
`
	}

	return base + `4. This bundle is UNSIGNED (see UNSIGNED_NOTICE.txt); steps 1-3 are
   the complete verification.
`
}
