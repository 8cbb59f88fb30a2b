package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remedyhq/remedy/internal/gateway"
	"github.com/remedyhq/remedy/internal/github"
	"github.com/remedyhq/remedy/internal/llm"
	"github.com/remedyhq/remedy/internal/models"
	"github.com/remedyhq/remedy/internal/orchestrator"
	"github.com/remedyhq/remedy/internal/sandbox"
	"github.com/remedyhq/remedy/internal/store"
)

// stubSandbox satisfies the interface; Create always fails so workflows
// finish quickly. API tests assert on HTTP semantics, not workflow output.
type stubSandbox struct{}

func (stubSandbox) Create(context.Context) error {
	return &sandbox.ProvisioningError{StatusCode: 503, Message: "no capacity"}
}
func (stubSandbox) RunCommand(context.Context, string, string) (*sandbox.CommandResult, error) {
	return &sandbox.CommandResult{}, nil
}
func (stubSandbox) ReadFile(context.Context, string) (string, error) { return "", nil }

func (stubSandbox) WriteFile(context.Context, string, string) error { return nil }

func (stubSandbox) ListFiles(context.Context, string) ([]string, error) { return nil, nil }

func (stubSandbox) GatewayURL() (string, error) { return "", nil }

func (stubSandbox) GatewayToken() (string, error) { return "", nil }

func (stubSandbox) SetTimeout(context.Context, int) error { return nil }

func (stubSandbox) Teardown(context.Context) error { return nil }

func (stubSandbox) ID() string { return "sbx_stub" }

type stubFactory struct{}

func (stubFactory) New(sandbox.Config) sandbox.Sandbox { return stubSandbox{} }

// planGen answers the refine and suggestion prompts used by plan refinement.
type planGen struct{}

func (planGen) Generate(_ context.Context, msgs []llm.Message, _ *llm.Options) (*llm.Result, error) {
	if strings.Contains(msgs[0].Content, "follow-up improvements") {
		return &llm.Result{Content: `{"suggestions": []}`}, nil
	}
	return &llm.Result{Content: `{"steps": [{"description": "revised", "reasoning": "feedback", "files": [], "estimatedImpact": "low"}]}`}, nil
}

func (planGen) GenerateWithTools(ctx context.Context, msgs []llm.Message, _ gateway.Credentials, opts *llm.Options) (*llm.Result, error) {
	return planGen{}.Generate(ctx, msgs, opts)
}

func (planGen) Provider() string { return "fake" }

type stubGitHub struct{}

func (stubGitHub) FetchIssue(_ context.Context, ref github.IssueRef) (*github.Issue, error) {
	return &github.Issue{Title: "panic on empty input", Body: "it crashes"}, nil
}

func newTestServer(t *testing.T) (http.Handler, store.Store, *orchestrator.Orchestrator) {
	t.Helper()
	st := store.NewMemoryStore()
	orch := orchestrator.New(st, stubFactory{}, planGen{}, nil, stubGitHub{}, orchestrator.Config{}, nil)
	t.Cleanup(orch.Wait)
	return NewServer(orch).Router(), st, orch
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	h, _, orch := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", map[string]string{"issue_ref": "acme/widgets#42"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sess models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "acme/widgets#42", sess.IssueRef)
	assert.Equal(t, models.SessionStatusAnalyzing, sess.Status)

	orch.Wait()
}

func TestCreateSession_InvalidBody(t *testing.T) {
	h, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSession_MissingRef(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSession_BadRef(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", map[string]string{"issue_ref": "not-a-ref"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession(t *testing.T) {
	h, st, _ := newTestServer(t)

	sess := &models.Session{IssueRef: "acme/widgets#42", Status: models.SessionStatusComplete}
	require.NoError(t, st.CreateSession(context.Background(), sess))

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sess.ID, got.ID)
}

func TestGetSession_NotFound(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	h, st, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, &models.Session{IssueRef: "acme/widgets#1"}))
	require.NoError(t, st.CreateSession(ctx, &models.Session{IssueRef: "acme/widgets#2"}))

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []*models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestListSessions_EmptyIsArray(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestListSessions_InvalidLimit(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sessions?limit=banana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	h, st, _ := newTestServer(t)

	sess := &models.Session{IssueRef: "acme/widgets#42", Status: models.SessionStatusComplete}
	require.NoError(t, st.CreateSession(context.Background(), sess))

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateFixes_NoPlanConflicts(t *testing.T) {
	h, st, _ := newTestServer(t)

	sess := &models.Session{IssueRef: "acme/widgets#42", Status: models.SessionStatusComplete}
	require.NoError(t, st.CreateSession(context.Background(), sess))

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/fixes", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateFixes_NotFound(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/nope/fixes", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefinePlan(t *testing.T) {
	h, st, _ := newTestServer(t)

	sess := &models.Session{
		IssueRef: "acme/widgets#42",
		Status:   models.SessionStatusComplete,
		Plan: &models.FixPlan{
			Version:   1,
			Steps:     []models.PlanStep{{Description: "original"}},
			Questions: []models.Question{{ID: "q1", Text: "which version?"}},
		},
	}
	require.NoError(t, st.CreateSession(context.Background(), sess))

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/plan/refine",
		map[string]string{"feedback": "simplify it"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Plan)
	assert.Equal(t, 2, got.Plan.Version)
	assert.Equal(t, "revised", got.Plan.Steps[0].Description)
	assert.Len(t, got.Plan.Questions, 1, "questions survive refinement")
}

func TestRefinePlan_MissingFeedback(t *testing.T) {
	h, st, _ := newTestServer(t)

	sess := &models.Session{IssueRef: "acme/widgets#42", Status: models.SessionStatusComplete,
		Plan: &models.FixPlan{Version: 1}}
	require.NoError(t, st.CreateSession(context.Background(), sess))

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/plan/refine", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestCORSPreflights(t *testing.T) {
	h, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
