package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptvault/promptvault/internal/api"
	"github.com/promptvault/promptvault/internal/config"
	"github.com/promptvault/promptvault/internal/store/memory"
)

const adminKey = "test-admin-key"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		Auth: config.AuthConfig{
			AdminKey:       adminKey,
			AdminKeyHeader: "X-Admin-Key",
		},
	}
	srv := httptest.NewServer(api.NewRouter(memory.New(), cfg).Setup())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func adminHeader() map[string]string {
	return map[string]string{"X-Admin-Key": adminKey}
}

func createPrompt(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/prompts", map[string]any{
		"name":    "summarizer",
		"purpose": "summarization",
		"tags":    []string{"nlp"},
		"content": "Summarize the following text.",
		"author":  "alice",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	prompt, ok := body["prompt"].(map[string]any)
	require.True(t, ok)
	id, ok := prompt["id"].(string)
	require.True(t, ok)
	return id
}

func TestCreateAndGetPrompt(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "summarizer", body["name"])
	assert.Equal(t, "draft", body["status"])
	assert.Equal(t, float64(1), body["version_count"])

	current, ok := body["current_version"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", current["version_number"])
}

func TestCreatePromptValidation(t *testing.T) {
	srv := newServer(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/prompts", map[string]any{
		"purpose": "summarization",
		"content": "text",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "name")
}

func TestPutCreatesVersionWhenContentPresent(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/prompts/"+id, map[string]any{
		"content":            "Summarize in one sentence.",
		"change_description": "Shorter output",
		"bump_type":          "minor",
		"author":             "bob",
	}, adminHeader())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "1.1.0", body["version_number"])
}

func TestPutPatchesMetadataOtherwise(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/prompts/"+id, map[string]any{
		"description": "Condenses long documents.",
		"author":      "bob",
	}, adminHeader())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Condenses long documents.", body["description"])
	assert.Equal(t, "summarizer", body["name"])
}

func TestPutEmptyPatchRejected(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/prompts/"+id, map[string]any{
		"author": "bob",
	}, adminHeader())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	// No key.
	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/prompts/"+id, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/prompts/"+id+"/status", map[string]any{
		"status":  "active",
		"comment": "go",
	}, map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Reads stay public.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoutesFailClosedWithoutConfiguredKey(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{AdminKeyHeader: "X-Admin-Key"},
	}
	srv := httptest.NewServer(api.NewRouter(memory.New(), cfg).Setup())
	defer srv.Close()

	id := createPrompt(t, srv)
	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/prompts/"+id, nil, adminHeader())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatusChange(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/prompts/"+id+"/status", map[string]any{
		"status":  "active",
		"comment": "approved",
		"author":  "dave",
	}, adminHeader())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "draft", body["from"])
	assert.Equal(t, "active", body["to"])

	// Missing comment is rejected before any write.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/prompts/"+id+"/status", map[string]any{
		"status": "deprecated",
	}, adminHeader())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRollbackEndpoint(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/prompts/"+id, map[string]any{
		"content":            "Revised content.",
		"change_description": "Revise",
		"bump_type":          "major",
		"author":             "bob",
	}, adminHeader())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/prompts/"+id+"/versions/1.0.0/rollback", map[string]any{
		"comment": "revision broke evals",
		"author":  "carol",
	}, adminHeader())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "2.0.1", body["version_number"])
	assert.Equal(t, "Summarize the following text.", body["content"])

	// Malformed version numbers are rejected at the boundary.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/prompts/"+id+"/versions/not-a-version/rollback", map[string]any{
		"comment": "x",
	}, adminHeader())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVersionListAndGet(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+id+"/versions", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	versions, ok := body["versions"].([]any)
	require.True(t, ok)
	assert.Len(t, versions, 1)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+id+"/versions/1.0.0", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1.0.0", body["version_number"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+id+"/versions/3.0.0", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsEndpointPaginates(t *testing.T) {
	srv := newServer(t)
	id := createPrompt(t, srv)

	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/prompts/"+id+"/status", map[string]any{
			"status":  "testing",
			"comment": fmt.Sprintf("round %d", i),
			"author":  "dave",
		}, adminHeader())
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+id+"/events?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4), body["total"])
	assert.Equal(t, true, body["has_more"])
	events, ok := body["events"].([]any)
	require.True(t, ok)
	assert.Len(t, events, 2)
}

func TestSearchEndpoint(t *testing.T) {
	srv := newServer(t)
	createPrompt(t, srv)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/prompts?search=summarize&status=draft", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	items, ok := body["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/prompts?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTagsAndPurposes(t *testing.T) {
	srv := newServer(t)
	createPrompt(t, srv)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/tags", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tags, ok := body["tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 1)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/purposes", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	purposes, ok := body["purposes"].([]any)
	require.True(t, ok)
	require.Len(t, purposes, 1)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListRoutesReturn404ForUnknownPrompt(t *testing.T) {
	srv := newServer(t)
	unknown := uuid.NewString()

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+unknown+"/versions", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/prompts/"+unknown+"/events", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidPromptID(t *testing.T) {
	srv := newServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/prompts/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
