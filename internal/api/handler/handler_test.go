package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/reviewlens/reviewlens/internal/api/middleware"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub store ---

type stubStore struct {
	owner       *models.Owner
	ownerErr    error
	job         *models.Job
	jobErr      error
	findings    []*models.Finding
	findingsErr error
	keys        []*models.APIKey
	createdKey  *models.APIKey
	revokeErr   error
}

func (s *stubStore) Ping(context.Context) error { return nil }

func (s *stubStore) GetOwner(context.Context, uuid.UUID) (*models.Owner, error) {
	if s.ownerErr != nil {
		return nil, s.ownerErr
	}
	return s.owner, nil
}
func (s *stubStore) GetDefaultOwner(context.Context) (*models.Owner, error) {
	return s.owner, s.ownerErr
}
func (s *stubStore) IncrementJobsUsed(context.Context, uuid.UUID) error { return nil }

func (s *stubStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return s.keys, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.createdKey = key
	return nil
}
func (s *stubStore) ListAPIKeys(context.Context, uuid.UUID) ([]*models.APIKey, error) {
	return s.keys, nil
}
func (s *stubStore) RevokeAPIKey(context.Context, uuid.UUID, uuid.UUID) error { return s.revokeErr }

func (s *stubStore) CreateJob(context.Context, *models.Job) error { return nil }
func (s *stubStore) GetJob(context.Context, uuid.UUID, uuid.UUID) (*models.Job, error) {
	if s.jobErr != nil {
		return nil, s.jobErr
	}
	return s.job, nil
}
func (s *stubStore) UpdateJobStatus(context.Context, uuid.UUID, string, ...store.JobUpdateOption) error {
	return nil
}
func (s *stubStore) CreateFindings(context.Context, []*models.Finding) error { return nil }
func (s *stubStore) ListFindingsByJob(context.Context, uuid.UUID) ([]*models.Finding, error) {
	return s.findings, s.findingsErr
}

var _ store.Store = (*stubStore)(nil)

// --- stub job creator ---

type stubCreator struct {
	job *models.Job
	err error
}

func (s *stubCreator) CreateJob(_ context.Context, _ *models.Owner, _ string) (*models.Job, error) {
	return s.job, s.err
}

// --- helpers ---

// authedRequest builds a request carrying the owner id and, when jobID is
// non-empty, a chi route context resolving {jobID}.
func authedRequest(method, target string, body string, ownerID uuid.UUID, params map[string]string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	ctx := mw.SetOwnerID(r.Context(), ownerID)
	if len(params) > 0 {
		routeCtx := chi.NewRouteContext()
		for k, v := range params {
			routeCtx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
	}
	return r.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env["error"].(map[string]any)
}

func testOwner() *models.Owner {
	return &models.Owner{ID: uuid.New(), Email: "test@reviewlens.local", Plan: models.PlanFree}
}

// ========================================
// Create Job
// ========================================

func TestCreateJob_Accepted(t *testing.T) {
	owner := testOwner()
	job := &models.Job{ID: uuid.New(), OwnerID: owner.ID, AppID: "com.example.app", Status: models.JobStatusPending}
	h := NewCreateJobHandler(&stubStore{owner: owner}, &stubCreator{job: job})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", `{"app_id": "com.example.app"}`, owner.ID, nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, job.ID.String(), data["id"])
	assert.Equal(t, "pending", data["status"])
}

func TestCreateJob_MissingOwner(t *testing.T) {
	h := NewCreateJobHandler(&stubStore{}, &stubCreator{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/jobs", bytes.NewReader([]byte(`{"app_id": "com.example.app"}`)))
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", decodeErr(t, rec)["code"])
}

func TestCreateJob_BadJSON(t *testing.T) {
	h := NewCreateJobHandler(&stubStore{owner: testOwner()}, &stubCreator{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", `{not json`, uuid.New(), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeErr(t, rec)["code"])
}

func TestCreateJob_MissingAppID(t *testing.T) {
	h := NewCreateJobHandler(&stubStore{owner: testOwner()}, &stubCreator{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", `{}`, uuid.New(), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_InvalidSubject(t *testing.T) {
	h := NewCreateJobHandler(&stubStore{owner: testOwner()}, &stubCreator{err: pipeline.ErrInvalidSubject})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", `{"app_id": "not-a-package"}`, uuid.New(), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SUBJECT", decodeErr(t, rec)["code"])
}

func TestCreateJob_QuotaExceeded(t *testing.T) {
	h := NewCreateJobHandler(&stubStore{owner: testOwner()}, &stubCreator{err: pipeline.ErrQuotaExceeded})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", `{"app_id": "com.example.app"}`, uuid.New(), nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "QUOTA_EXCEEDED", decodeErr(t, rec)["code"])
}

func TestCreateJob_OwnerLookupFails(t *testing.T) {
	h := NewCreateJobHandler(&stubStore{ownerErr: errors.New("db down")}, &stubCreator{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", `{"app_id": "com.example.app"}`, uuid.New(), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ========================================
// Get Job
// ========================================

func TestGetJob_Found(t *testing.T) {
	diagnostic := "subject_not_found"
	job := &models.Job{ID: uuid.New(), AppID: "com.example.app", Status: models.JobStatusError, Diagnostic: &diagnostic}
	h := NewGetJobHandler(&stubStore{job: job})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/"+job.ID.String(), "", uuid.New(),
		map[string]string{"jobID": job.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "error", data["status"])
	assert.Equal(t, "subject_not_found", data["diagnostic"])
}

func TestGetJob_NotFound(t *testing.T) {
	h := NewGetJobHandler(&stubStore{jobErr: store.ErrNotFound})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x", "", uuid.New(),
		map[string]string{"jobID": uuid.New().String()}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeErr(t, rec)["code"])
}

func TestGetJob_BadID(t *testing.T) {
	h := NewGetJobHandler(&stubStore{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/nope", "", uuid.New(),
		map[string]string{"jobID": "nope"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ========================================
// List Findings
// ========================================

func TestListFindings_Complete(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusComplete}
	findings := []*models.Finding{
		{ID: uuid.New(), JobID: job.ID, Category: models.CategoryStability, Severity: models.SeverityHigh, Frequency: 5, Description: "crashes"},
		{ID: uuid.New(), JobID: job.ID, Category: models.CategoryUX, Severity: models.SeverityLow, Frequency: 2, Description: "confusing menu"},
	}
	h := NewListFindingsHandler(&stubStore{job: job, findings: findings})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x/findings", "", uuid.New(),
		map[string]string{"jobID": job.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Len(t, env.Data, 2)
	assert.Equal(t, 2, env.Meta.Count)
}

func TestListFindings_JobNotComplete(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusExtracting}
	h := NewListFindingsHandler(&stubStore{job: job})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x/findings", "", uuid.New(),
		map[string]string{"jobID": job.ID.String()}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeErr(t, rec)
	assert.Equal(t, "JOB_NOT_COMPLETE", errBody["code"])
	details := errBody["details"].(map[string]any)
	assert.Equal(t, "extracting", details["status"])
}

func TestListFindings_JobNotFound(t *testing.T) {
	h := NewListFindingsHandler(&stubStore{jobErr: store.ErrNotFound})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x/findings", "", uuid.New(),
		map[string]string{"jobID": uuid.New().String()}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ========================================
// API Keys
// ========================================

func TestCreateKey_ReturnsRawKeyOnce(t *testing.T) {
	st := &stubStore{}
	h := NewCreateKeyHandler(st)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/admin/keys", `{"name": "ci"}`, uuid.New(), nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec)

	rawKey, ok := data["raw_key"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(rawKey, "rl_"))
	assert.Len(t, rawKey, 3+keyRandomBytes*2)

	// Stored hash verifies against the raw key; the prefix is the lookup handle.
	require.NotNil(t, st.createdKey)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(st.createdKey.KeyHash), []byte(rawKey)))
	assert.Equal(t, rawKey[:8], st.createdKey.KeyPrefix)
	assert.Equal(t, []string{"default"}, st.createdKey.Scopes)
	assert.False(t, st.createdKey.CreatedAt.IsZero())
	assert.False(t, st.createdKey.UpdatedAt.IsZero())
}

func TestCreateKey_MissingName(t *testing.T) {
	h := NewCreateKeyHandler(&stubStore{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/admin/keys", `{}`, uuid.New(), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateKey_CustomScopes(t *testing.T) {
	st := &stubStore{}
	h := NewCreateKeyHandler(st)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/admin/keys",
		`{"name": "admin-key", "scopes": ["default", "admin"]}`, uuid.New(), nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"default", "admin"}, st.createdKey.Scopes)
}

func TestListKeys(t *testing.T) {
	keys := []*models.APIKey{
		{ID: uuid.New(), Name: "ci", KeyPrefix: "rl_abc12"},
		{ID: uuid.New(), Name: "local", KeyPrefix: "rl_def34"},
	}
	h := NewListKeysHandler(&stubStore{keys: keys})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/admin/keys", "", uuid.New(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, 2, env.Meta.Count)

	// The hash never leaves the server.
	for _, k := range env.Data {
		_, present := k["key_hash"]
		assert.False(t, present)
	}
}

func TestRevokeKey_NoContent(t *testing.T) {
	h := NewRevokeKeyHandler(&stubStore{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("DELETE", "/api/v1/admin/keys/x", "", uuid.New(),
		map[string]string{"keyID": uuid.New().String()}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRevokeKey_NotFound(t *testing.T) {
	h := NewRevokeKeyHandler(&stubStore{revokeErr: store.ErrNotFound})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("DELETE", "/api/v1/admin/keys/x", "", uuid.New(),
		map[string]string{"keyID": uuid.New().String()}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "KEY_NOT_FOUND", decodeErr(t, rec)["code"])
}

// ========================================
// Job Events (SSE)
// ========================================

type stubSubscriber struct {
	events chan progress.Event
}

func (s *stubSubscriber) Subscribe(_ context.Context, _ uuid.UUID) (<-chan progress.Event, func()) {
	return s.events, func() {}
}

func TestJobEvents_TerminalJobSendsOneSnapshot(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusComplete}
	h := NewJobEventsHandler(&stubStore{job: job}, &stubSubscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x/events", "", uuid.New(),
		map[string]string{"jobID": job.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, "data: "))
	assert.Contains(t, body, `"stage":"complete"`)
	assert.Contains(t, body, `"percent":100`)
}

func TestJobEvents_ErrorJobSnapshot(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusError}
	h := NewJobEventsHandler(&stubStore{job: job}, &stubSubscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x/events", "", uuid.New(),
		map[string]string{"jobID": job.ID.String()}))

	assert.Contains(t, rec.Body.String(), `"stage":"error"`)
}

func TestJobEvents_StreamsUntilTerminalEvent(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusCollecting}
	events := make(chan progress.Event, 4)
	events <- progress.Event{Stage: progress.StageExtracting, Percent: 45}
	events <- progress.Event{Stage: progress.StageComplete, Percent: 100}

	h := NewJobEventsHandler(&stubStore{job: job}, &stubSubscriber{events: events})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x/events", "", uuid.New(),
		map[string]string{"jobID": job.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"stage":"complete"`)
	assert.Contains(t, body, `"percent":100`)
}

func TestJobEvents_JobNotFound(t *testing.T) {
	h := NewJobEventsHandler(&stubStore{jobErr: store.ErrNotFound}, &stubSubscriber{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/x/events", "", uuid.New(),
		map[string]string{"jobID": uuid.New().String()}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
