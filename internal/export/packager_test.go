package export_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-legal/custodia/internal/crypto"
	"github.com/custodia-legal/custodia/internal/domain"
	"github.com/custodia-legal/custodia/internal/export"
	"github.com/custodia-legal/custodia/internal/ledger"
)

type fakeExhibitRepo struct {
	exhibits []*domain.Exhibit
}

func (f *fakeExhibitRepo) Create(_ context.Context, e *domain.Exhibit) error {
	f.exhibits = append(f.exhibits, e)
	return nil
}

func (f *fakeExhibitRepo) Get(_ context.Context, workspaceID, id uuid.UUID) (*domain.Exhibit, error) {
	for _, e := range f.exhibits {
		if e.WorkspaceID == workspaceID && e.ID == id {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeExhibitRepo) ListByWorkspace(_ context.Context, workspaceID uuid.UUID) ([]*domain.Exhibit, error) {
	var out []*domain.Exhibit
	for _, e := range f.exhibits {
		if e.WorkspaceID == workspaceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeExhibitRepo) ListByIDs(_ context.Context, workspaceID uuid.UUID, ids []uuid.UUID) ([]*domain.Exhibit, error) {
	var out []*domain.Exhibit
	for _, id := range ids {
		for _, e := range f.exhibits {
			if e.WorkspaceID == workspaceID && e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeExhibitRepo) Revoke(_ context.Context, _, _ uuid.UUID, _ string, _ time.Time) error {
	return nil
}

func (f *fakeExhibitRepo) TouchVerified(_ context.Context, _, _ uuid.UUID, _ time.Time) error {
	return nil
}

type fakeStorage struct {
	objects map[string][]byte
}

func (f *fakeStorage) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (f *fakeStorage) Upload(_ context.Context, key string, data []byte) error {
	f.objects[key] = data
	return nil
}

type fakeChain struct {
	report ledger.ChainReport
}

func (f *fakeChain) VerifyChain(_ context.Context, workspaceID uuid.UUID) (*ledger.ChainReport, error) {
	report := f.report
	report.WorkspaceID = workspaceID
	return &report, nil
}

type recordedEvent struct {
	action  string
	details map[string]any
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) Append(_ context.Context, workspaceID uuid.UUID, _, _, action string, details map[string]any) (*domain.AuditEvent, error) {
	f.events = append(f.events, recordedEvent{action: action, details: details})
	return &domain.AuditEvent{ID: uuid.New(), WorkspaceID: workspaceID}, nil
}

type packagerFixture struct {
	workspaceID uuid.UUID
	matterID    uuid.UUID
	exhibits    *fakeExhibitRepo
	storage     *fakeStorage
	hasher      *crypto.Hasher
	chain       *fakeChain
	recorder    *fakeRecorder
	pub         ed25519.PublicKey
	packager    *export.Packager
}

func newPackagerFixture(t *testing.T, signed bool) *packagerFixture {
	t.Helper()

	hasher, err := crypto.NewHasher(crypto.SHA256)
	require.NoError(t, err)

	f := &packagerFixture{
		workspaceID: uuid.New(),
		matterID:    uuid.New(),
		exhibits:    &fakeExhibitRepo{},
		storage:     &fakeStorage{objects: make(map[string][]byte)},
		hasher:      hasher,
		chain:       &fakeChain{report: ledger.ChainReport{IsValid: true, EventCount: 7, HeadHash: "deadbeef"}},
		recorder:    &fakeRecorder{},
	}

	var signer crypto.Signer = crypto.NoSigner{}
	if signed {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		f.pub = pub
		signer, err = crypto.NewEd25519Signer(priv)
		require.NoError(t, err)
	}

	f.packager = export.NewPackager(f.exhibits, f.storage, hasher, signer, f.chain, f.recorder)
	return f
}

func (f *packagerFixture) addExhibit(name string, content []byte, corrupt bool) *domain.Exhibit {
	key := "exhibits/" + name
	f.storage.objects[key] = content

	recorded := f.hasher.ContentHash(content)
	if corrupt {
		recorded = f.hasher.ContentHash(append(content, '!'))
	}

	exhibit := &domain.Exhibit{
		ID:            uuid.New(),
		WorkspaceID:   f.workspaceID,
		MatterID:      f.matterID,
		FileName:      name,
		StorageKey:    key,
		IntegrityHash: recorded,
		CreatedAt:     time.Now().UTC(),
	}
	f.exhibits.exhibits = append(f.exhibits.exhibits, exhibit)
	return exhibit
}

// readArchive unpacks a built bundle into a name-to-content map.
func readArchive(t *testing.T, buf *bytes.Buffer) map[string][]byte {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	files := make(map[string][]byte, len(zr.File))
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[zf.Name] = data
	}
	return files
}

func TestBuildPackageSigned(t *testing.T) {
	t.Parallel()

	f := newPackagerFixture(t, true)
	exhibit := f.addExhibit("contract.pdf", []byte("executed copy"), false)

	var buf bytes.Buffer
	result, err := f.packager.BuildPackage(context.Background(), f.workspaceID, export.PackageOptions{
		IncludeVerificationKey: true,
	}, &buf)
	require.NoError(t, err)

	files := readArchive(t, &buf)

	evidencePath := "evidence/" + exhibit.ID.String() + "_contract.pdf"
	require.Contains(t, files, evidencePath)
	assert.Equal(t, []byte("executed copy"), files[evidencePath])
	require.Contains(t, files, "manifest.json")
	require.Contains(t, files, "manifest.sig")
	require.Contains(t, files, "verification_key.pem")
	require.Contains(t, files, "VERIFICATION_PROTOCOL.txt")
	assert.NotContains(t, files, "UNSIGNED_NOTICE.txt")

	// The manifest self-verifies and lists the evidence file.
	var manifest export.Manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	ok, err := export.VerifyManifestHash(manifest)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, manifest.Files, 1)
	assert.Equal(t, evidencePath, manifest.Files[0].Path)
	assert.Equal(t, export.ModeSigned, manifest.Integrity.Mode)

	// The detached signature covers the shipped manifest bytes exactly.
	var sig export.SignatureBundle
	require.NoError(t, json.Unmarshal(files["manifest.sig"], &sig))
	assert.Equal(t, export.SignatureSigned, sig.Status)
	assert.Equal(t, "ed25519", sig.Algorithm)

	rawSig, err := base64.StdEncoding.DecodeString(sig.SignatureB64)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(f.pub, files["manifest.json"], rawSig))

	assert.Equal(t, 1, result.FileCount)
	assert.Equal(t, export.SignatureSigned, result.Signature.Status)

	// The export left its own trace in the ledger.
	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, "EXPORT_PACKET", f.recorder.events[0].action)
	assert.Equal(t, result.Manifest.ManifestHash, f.recorder.events[0].details["manifest_hash"])
}

func TestBuildPackageUnsigned(t *testing.T) {
	t.Parallel()

	f := newPackagerFixture(t, false)
	f.addExhibit("contract.pdf", []byte("executed copy"), false)

	var buf bytes.Buffer
	result, err := f.packager.BuildPackage(context.Background(), f.workspaceID, export.PackageOptions{
		IncludeVerificationKey: true,
	}, &buf)
	require.NoError(t, err)

	files := readArchive(t, &buf)

	// Degradation is explicit: the bundle is complete, labeled hash-only,
	// and carries the notice instead of a key.
	require.Contains(t, files, "UNSIGNED_NOTICE.txt")
	assert.NotContains(t, files, "verification_key.pem")

	var manifest export.Manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	assert.Equal(t, export.ModeHashOnly, manifest.Integrity.Mode)
	assert.Equal(t, export.SignatureUnsigned, manifest.Integrity.SignatureStatus)

	ok, err := export.VerifyManifestHash(manifest)
	require.NoError(t, err)
	assert.True(t, ok)

	var sig export.SignatureBundle
	require.NoError(t, json.Unmarshal(files["manifest.sig"], &sig))
	assert.Equal(t, export.SignatureUnsigned, sig.Status)
	assert.Empty(t, sig.SignatureB64)

	assert.Equal(t, export.SignatureUnsigned, result.Signature.Status)
}

func TestBuildPackageAbortsOnHashMismatch(t *testing.T) {
	t.Parallel()

	f := newPackagerFixture(t, true)
	f.addExhibit("good.pdf", []byte("fine"), false)
	f.addExhibit("bad.pdf", []byte("altered"), true)

	var buf bytes.Buffer
	_, err := f.packager.BuildPackage(context.Background(), f.workspaceID, export.PackageOptions{}, &buf)
	require.ErrorIs(t, err, export.ErrExportHashMismatch)
	assert.Empty(t, f.recorder.events)
}

func TestBuildPackageSelection(t *testing.T) {
	t.Parallel()

	t.Run("explicit exhibit ids", func(t *testing.T) {
		t.Parallel()

		f := newPackagerFixture(t, false)
		wanted := f.addExhibit("a.pdf", []byte("one"), false)
		f.addExhibit("b.pdf", []byte("two"), false)

		var buf bytes.Buffer
		result, err := f.packager.BuildPackage(context.Background(), f.workspaceID, export.PackageOptions{
			ExhibitIDs: []uuid.UUID{wanted.ID},
		}, &buf)
		require.NoError(t, err)

		assert.Equal(t, 1, result.FileCount)
		files := readArchive(t, &buf)
		assert.Contains(t, files, "evidence/"+wanted.ID.String()+"_a.pdf")
	})

	t.Run("matter filter", func(t *testing.T) {
		t.Parallel()

		f := newPackagerFixture(t, false)
		f.addExhibit("a.pdf", []byte("one"), false)
		outside := f.addExhibit("b.pdf", []byte("two"), false)
		outside.MatterID = uuid.New()

		var buf bytes.Buffer
		result, err := f.packager.BuildPackage(context.Background(), f.workspaceID, export.PackageOptions{
			MatterID: f.matterID,
		}, &buf)
		require.NoError(t, err)

		assert.Equal(t, 1, result.FileCount)
	})
}

func TestBuildPackageClaims(t *testing.T) {
	t.Parallel()

	f := newPackagerFixture(t, false)
	f.addExhibit("a.pdf", []byte("one"), false)

	var buf bytes.Buffer
	result, err := f.packager.BuildPackage(context.Background(), f.workspaceID, export.PackageOptions{
		ClaimProofs: []export.ClaimProof{
			{ID: "claim-1", Claim: "dates were backfilled", AnchorIDs: []string{"b", "a"}},
		},
	}, &buf)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FileCount)
	files := readArchive(t, &buf)
	require.Contains(t, files, "claims.json")

	var claims []map[string]any
	require.NoError(t, json.Unmarshal(files["claims.json"], &claims))
	require.Len(t, claims, 1)
	assert.Equal(t, "claim-1", claims[0]["id"])
	assert.Equal(t, []any{"a", "b"}, claims[0]["anchorIds"])
	assert.NotEmpty(t, claims[0]["proofHash"])

	// claims.json is itself inventoried.
	var manifest export.Manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	paths := make([]string, 0, len(manifest.Files))
	for _, entry := range manifest.Files {
		paths = append(paths, entry.Path)
	}
	assert.Contains(t, paths, "claims.json")
}

func TestBuildCertificate(t *testing.T) {
	t.Parallel()

	t.Run("signed pass", func(t *testing.T) {
		t.Parallel()

		f := newPackagerFixture(t, true)

		cert, err := f.packager.BuildCertificate(context.Background(), f.workspaceID, 12, 0)
		require.NoError(t, err)

		assert.True(t, cert.Passed)
		assert.Equal(t, 7, cert.EventCount)
		assert.Equal(t, "deadbeef", cert.HeadHash)
		assert.Equal(t, export.SignatureSigned, cert.Signature.Status)

		doc := cert.Render()
		assert.Contains(t, doc, "Status:           PASS")
		assert.Contains(t, doc, "SIGNATURE")
		assert.Contains(t, doc, cert.Signature.SignerKeyID)
	})

	t.Run("failed assets fail the certificate", func(t *testing.T) {
		t.Parallel()

		f := newPackagerFixture(t, true)

		cert, err := f.packager.BuildCertificate(context.Background(), f.workspaceID, 12, 3)
		require.NoError(t, err)

		assert.False(t, cert.Passed)
		assert.Contains(t, cert.Render(), "Status:           FAIL")
	})

	t.Run("broken chain fails the certificate", func(t *testing.T) {
		t.Parallel()

		f := newPackagerFixture(t, true)
		f.chain.report.IsValid = false

		cert, err := f.packager.BuildCertificate(context.Background(), f.workspaceID, 12, 0)
		require.NoError(t, err)
		assert.False(t, cert.Passed)
	})

	t.Run("unsigned certificate says so", func(t *testing.T) {
		t.Parallel()

		f := newPackagerFixture(t, false)

		cert, err := f.packager.BuildCertificate(context.Background(), f.workspaceID, 0, 0)
		require.NoError(t, err)

		assert.Equal(t, export.SignatureUnsigned, cert.Signature.Status)
		assert.Contains(t, cert.Render(), "UNSIGNED")
	})
}
