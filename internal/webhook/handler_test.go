package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"broker_crm_backend/internal/auth/gate"
	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string]gate.Resolution

func (f fakeResolver) Resolve(_ context.Context, credentials string) (gate.Resolution, error) {
	res, ok := f[credentials]
	if !ok {
		return gate.Resolution{}, errors.New("invalid token")
	}
	return res, nil
}

type fakeGateConfig struct{}

func (fakeGateConfig) GetLoginPath() string          { return "/login" }
func (fakeGateConfig) GetDefaultLandingPath() string { return "/dashboard" }

type testServer struct {
	engine  *gin.Engine
	keys    *memoryKeys
	creator *recordingCreator
	apiKey  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	keys := newMemoryKeys()
	creator := &recordingCreator{}
	svc := NewService(keys, creator, "US", log)

	_, plain, err := svc.CreateAPIKey(context.Background(), tenant, "Site", []string{"example.com"})
	require.NoError(t, err)

	resolver := fakeResolver{
		"admin": {
			Identity: gate.Identity{UserID: uuid.New(), Email: "admin@example.com"},
			Profile: &gate.Profile{CompanyID: tenant, Role: "admin",
				Permissions: permissions.FromStructured([]byte(`{"users":{"view":true,"edit":true}}`))},
		},
		"agent": {
			Identity: gate.Identity{UserID: uuid.New(), Email: "agent@example.com"},
			Profile: &gate.Profile{CompanyID: tenant, Role: "agent",
				Permissions: permissions.FromStructured([]byte(`{"leads":{"view":true}}`))},
		},
	}
	mw := gate.NewMiddleware(gate.New(resolver, log), fakeGateConfig{})

	router := gin.New()
	NewHandler(svc, validator.New()).RegisterRoutes(router.Group("/api/v1/webhook"), mw)
	return &testServer{engine: router, keys: keys, creator: creator, apiKey: plain}
}

func (s *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postForm(apiKey, origin string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/forms", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(headerAPIKey, apiKey)
	req.Header.Set("Origin", origin)
	return s.serve(req)
}

func (s *testServer) doJSON(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func TestFormSubmissionURLEncoded(t *testing.T) {
	s := newTestServer(t)

	rec := s.postForm(s.apiKey, "https://example.com", url.Values{
		"name":  {"Ada Lovelace"},
		"email": {"ada@example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp FormSubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsIncomplete)
	require.Len(t, s.creator.leads, 1)
	assert.Equal(t, "https://example.com", s.creator.leads[0].SourceDomain)
}

func TestFormSubmissionJSON(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"fullName": "Ada", "phone": "(650) 253-0000", "consent": true})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/forms", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, s.apiKey)
	req.Header.Set("Referer", "https://example.com/contact")

	rec := s.serve(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, s.creator.leads, 1)
	require.NotNil(t, s.creator.leads[0].Phone)
	assert.Equal(t, "+16502530000", *s.creator.leads[0].Phone)
}

func TestFormSubmissionDuplicateReturnsOK(t *testing.T) {
	s := newTestServer(t)
	s.keys.recent["ada@example.com"] = uuid.New()

	rec := s.postForm(s.apiKey, "https://example.com", url.Values{"name": {"Ada"}, "email": {"ada@example.com"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isDuplicate":true`)
	assert.Empty(t, s.creator.leads)
}

func TestFormSubmissionRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	fields := url.Values{"name": {"Ada"}}

	assert.Equal(t, http.StatusUnauthorized, s.postForm("", "https://example.com", fields).Code)
	assert.Equal(t, http.StatusUnauthorized, s.postForm("whk_nope", "https://example.com", fields).Code)
	assert.Equal(t, http.StatusForbidden, s.postForm(s.apiKey, "https://evil.com", fields).Code)
	assert.Empty(t, s.creator.leads)
}

func TestFormSubmissionEmptyBody(t *testing.T) {
	s := newTestServer(t)
	rec := s.postForm(s.apiKey, "https://example.com", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyManagement(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(http.MethodPost, "/api/v1/webhook/keys", "agent", map[string]any{"name": "Landing page"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/v1/webhook/keys", "admin", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/v1/webhook/keys", "admin", map[string]any{
		"name":           "Landing page",
		"allowedDomains": []string{"*.example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreateAPIKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, strings.HasPrefix(created.Key, "whk_"))
	assert.Equal(t, created.Key[:12], created.KeyPrefix)

	rec = s.doJSON(http.MethodGet, "/api/v1/webhook/keys", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []APIKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	rec = s.doJSON(http.MethodDelete, "/api/v1/webhook/keys/"+created.ID.String(), "admin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.doJSON(http.MethodDelete, "/api/v1/webhook/keys/not-a-uuid", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.postForm(created.Key, "https://www.example.com", url.Values{"name": {"Ada"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
