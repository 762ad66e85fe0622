package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-legal/custodia/internal/domain"
	"github.com/custodia-legal/custodia/internal/export"
	"github.com/custodia-legal/custodia/internal/gate"
	"github.com/custodia-legal/custodia/internal/server"
)

type fakeGateChecker struct {
	decision gate.Decision
	err      error
}

func (f *fakeGateChecker) Check(_ context.Context, _ uuid.UUID) (gate.Decision, error) {
	return f.decision, f.err
}

type fakeCertifier struct {
	checked int
	failed  int
	err     error
}

func (f *fakeCertifier) BuildCertificate(_ context.Context, workspaceID uuid.UUID, assetsChecked, assetsFailed int) (*export.Certificate, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.checked = assetsChecked
	f.failed = assetsFailed
	return &export.Certificate{
		WorkspaceID:   workspaceID,
		GeneratedAt:   time.Now().UTC(),
		Passed:        assetsFailed == 0,
		AssetsChecked: assetsChecked,
		AssetsFailed:  assetsFailed,
		Signature:     export.SignatureBundle{Status: export.SignatureUnsigned},
	}, nil
}

type fakeRunRepo struct {
	runs map[domain.AuditRunKind]*domain.AuditRun
}

func (f *fakeRunRepo) Create(_ context.Context, _ *domain.AuditRun) error { return nil }

func (f *fakeRunRepo) LatestByKind(_ context.Context, _ uuid.UUID, kind domain.AuditRunKind) (*domain.AuditRun, error) {
	run, ok := f.runs[kind]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return run, nil
}

// newTestRouter mirrors the real route wiring over httptest.
func newTestRouter(gateChecker server.GateChecker, certifier server.Certifier, runs domain.AuditRunRepository) http.Handler {
	srv := server.New(":0", time.Second, time.Second, gateChecker, certifier, runs)
	return srv.Handler()
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeGateChecker{}, &fakeCertifier{}, &fakeRunRepo{runs: map[domain.AuditRunKind]*domain.AuditRun{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIntegrityStatus(t *testing.T) {
	t.Parallel()

	t.Run("open workspace with run history", func(t *testing.T) {
		t.Parallel()

		workspaceID := uuid.New()
		runs := &fakeRunRepo{runs: map[domain.AuditRunKind]*domain.AuditRun{
			domain.RunContinuous: {ID: uuid.New(), WorkspaceID: workspaceID, Kind: domain.RunContinuous, Status: domain.RunSuccess, Checked: 4},
			domain.RunChain:      {ID: uuid.New(), WorkspaceID: workspaceID, Kind: domain.RunChain, Status: domain.RunSuccess},
		}}
		router := newTestRouter(&fakeGateChecker{}, &fakeCertifier{}, runs)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/integrity/"+workspaceID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, workspaceID.String(), body["workspaceId"])
		assert.Contains(t, body, "gate")
		assert.Contains(t, body, "lastAudit")
		assert.Contains(t, body, "lastChainProof")
	})

	t.Run("blocked workspace", func(t *testing.T) {
		t.Parallel()

		checker := &fakeGateChecker{decision: gate.Decision{Blocked: true, Reason: "HASH_MISMATCH", Source: gate.SourceAutoMonitor}}
		router := newTestRouter(checker, &fakeCertifier{}, &fakeRunRepo{runs: map[domain.AuditRunKind]*domain.AuditRun{}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/integrity/"+uuid.NewString(), nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Gate gate.Decision `json:"gate"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Gate.Blocked)
		assert.Equal(t, "HASH_MISMATCH", body.Gate.Reason)
	})

	t.Run("invalid workspace id", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&fakeGateChecker{}, &fakeCertifier{}, &fakeRunRepo{runs: map[domain.AuditRunKind]*domain.AuditRun{}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/integrity/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("gate failure is a 500", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&fakeGateChecker{err: fmt.Errorf("db down")}, &fakeCertifier{}, &fakeRunRepo{runs: map[domain.AuditRunKind]*domain.AuditRun{}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/integrity/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestCertificateEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("renders text and seeds counts from the latest run", func(t *testing.T) {
		t.Parallel()

		workspaceID := uuid.New()
		certifier := &fakeCertifier{}
		runs := &fakeRunRepo{runs: map[domain.AuditRunKind]*domain.AuditRun{
			domain.RunContinuous: {Kind: domain.RunContinuous, Status: domain.RunSuccess, Checked: 9, Failed: 1},
		}}
		router := newTestRouter(&fakeGateChecker{}, certifier, runs)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/certificate/"+workspaceID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, rec.Body.String(), "EVIDENCE INTEGRITY CERTIFICATE")
		assert.Equal(t, 9, certifier.checked)
		assert.Equal(t, 1, certifier.failed)
	})

	t.Run("certifier failure is a 500", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&fakeGateChecker{}, &fakeCertifier{err: fmt.Errorf("chain walk failed")}, &fakeRunRepo{runs: map[domain.AuditRunKind]*domain.AuditRun{}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/certificate/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
