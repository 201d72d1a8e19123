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
	"time"

	"broker_crm_backend/internal/auth/gate"
	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/internal/leads/automation"
	"broker_crm_backend/internal/leads/bulk"
	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/ports"
	"broker_crm_backend/internal/leads/repository"
	"broker_crm_backend/internal/leads/service"
	"broker_crm_backend/internal/leads/transport"
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

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, uuid.UUID, ports.Notification) error { return nil }

var (
	tenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	otherID  = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	brokerID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testNow  = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
)

type testServer struct {
	engine *gin.Engine
	repo   *repository.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepository()
	val := validator.New()
	require.NoError(t, val.RegisterOneOf("lead_status", domain.Statuses()...))
	require.NoError(t, val.RegisterOneOf("lead_source", domain.Sources()...))

	log := logger.NewNop()
	engine := automation.New(repo, repo, repo, nopDispatcher{}, time.UTC, log,
		automation.WithClock(func() time.Time { return testNow }))
	svc := service.New(repo, repo, engine, bulk.New(repo, engine, log), log)

	profile := func(company uuid.UUID, matrix string) *gate.Profile {
		return &gate.Profile{CompanyID: company, Role: "agent", DisplayName: "Grace Broker", Permissions: permissions.FromStructured([]byte(matrix))}
	}
	resolver := fakeResolver{
		"broker": {
			Identity: gate.Identity{UserID: brokerID, Email: "grace@example.com"},
			Profile:  profile(tenantID, `{"leads":{"view":true,"edit":true,"create":true,"delete":true}}`),
		},
		"viewer": {
			Identity: gate.Identity{UserID: uuid.New()},
			Profile:  profile(tenantID, `{"leads":{"view":true}}`),
		},
		"outsider": {
			Identity: gate.Identity{UserID: uuid.New()},
			Profile:  profile(otherID, `{"leads":{"view":true,"edit":true,"create":true,"delete":true}}`),
		},
	}
	mw := gate.NewMiddleware(gate.New(resolver, log), fakeGateConfig{})

	router := gin.New()
	New(svc, val).RegisterRoutes(router.Group("/api/v1/leads"), mw)
	return &testServer{engine: router, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) createLead(t *testing.T, body map[string]any) transport.LeadResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/leads", "broker", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[transport.LeadResponse](t, rec)
}

func TestCreateLeadUsesCallerTenant(t *testing.T) {
	s := newTestServer(t)

	lead := s.createLead(t, map[string]any{
		"contactName": "Ada Lovelace",
		"companyId":   otherID.String(),
		"phone":       "(201) 555-0123",
		"source":      "Website",
	})

	assert.Equal(t, tenantID, lead.CompanyID)
	assert.Equal(t, "New", lead.Status)
	assert.Equal(t, "Website", lead.Source)
	require.NotNil(t, lead.Phone)
	assert.Equal(t, "+12015550123", *lead.Phone)
}

func TestCreateLeadValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/leads", "broker", map[string]any{"contactName": "Ada", "status": "Archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "lead_status")

	rec = s.do(t, http.MethodPost, "/api/v1/leads", "broker", map[string]any{"contactName": "Ada", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/leads", "broker", map[string]any{"contactName": "Ada", "followUpDate": "next week"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateToContactedSchedulesFollowUp(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(t, map[string]any{"contactName": "Ada"})

	rec := s.do(t, http.MethodPatch, "/api/v1/leads/"+lead.ID.String(), "broker", map[string]any{"status": "Contacted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[transport.UpdateLeadResponse](t, rec)
	require.NotNil(t, res.Lead.FollowUpDate)
	assert.Equal(t, "2026-06-04", *res.Lead.FollowUpDate)
	assert.Empty(t, res.NotificationsQueued)
	assert.False(t, res.SideEffectsIncomplete)
}

func TestUpdateClearsPropertyWithEmptyString(t *testing.T) {
	s := newTestServer(t)
	property := s.repo.AddProperty(tenantID, "Harbour View Loft")
	lead := s.createLead(t, map[string]any{"contactName": "Ada", "propertyId": property.String()})

	rec := s.do(t, http.MethodPatch, "/api/v1/leads/"+lead.ID.String(), "broker", map[string]any{"propertyId": ""})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[transport.UpdateLeadResponse](t, rec).Lead.PropertyID)

	rec = s.do(t, http.MethodGet, "/api/v1/leads/"+lead.ID.String()+"/events", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[transport.LeadEventListResponse](t, rec).Items
	require.Len(t, events, 2)
	assert.Equal(t, "created", events[0].Type)
	assert.Equal(t, "property_assigned", events[1].Type)
	assert.Equal(t, domain.UnassignedProperty, *events[1].NewValue)
	assert.Equal(t, brokerID, *events[1].ActorID)
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(t, map[string]any{"contactName": "Ada"})

	rec := s.do(t, http.MethodPatch, "/api/v1/leads/"+lead.ID.String(), "broker", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRejectsOverlongContactName(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(t, map[string]any{"contactName": "Ada"})

	rec := s.do(t, http.MethodPatch, "/api/v1/leads/"+lead.ID.String(), "broker",
		map[string]any{"contactName": strings.Repeat("a", domain.MaxContactNameLength+1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "contactName")
}

func TestRoutesEnforceCapabilities(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(t, map[string]any{"contactName": "Ada"})
	path := "/api/v1/leads/" + lead.ID.String()

	rec := s.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/login"`)

	rec = s.do(t, http.MethodGet, path, "viewer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPatch, path, "viewer", map[string]any{"status": "Won"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/dashboard"`)

	rec = s.do(t, http.MethodDelete, path, "viewer", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	stored, err := s.repo.Get(context.Background(), tenantID, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, stored.Status)
}

func TestOtherTenantSeesNotFound(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(t, map[string]any{"contactName": "Ada"})
	path := "/api/v1/leads/" + lead.ID.String()

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, "outsider", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPatch, path, "outsider", map[string]any{"notes": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, path, "outsider", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path+"/events", "outsider", nil).Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, "broker", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, "broker", nil).Code)
}

func TestListLeadsPaginatesAndFilters(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"Ada", "Ben", "Cy"} {
		s.createLead(t, map[string]any{"contactName": name})
	}
	s.createLead(t, map[string]any{"contactName": "Dee", "status": "Won"})

	rec := s.do(t, http.MethodGet, "/api/v1/leads?page=1&pageSize=2", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[transport.LeadListResponse](t, rec)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 2)

	rec = s.do(t, http.MethodGet, "/api/v1/leads?status=Won", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	won := decode[transport.LeadListResponse](t, rec)
	require.Len(t, won.Items, 1)
	assert.Equal(t, "Dee", won.Items[0].ContactName)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/leads?status=Archived", "viewer", nil).Code)
}

func TestBulkEndpointsReportPerItem(t *testing.T) {
	s := newTestServer(t)
	a := s.createLead(t, map[string]any{"contactName": "Ada"})
	b := s.createLead(t, map[string]any{"contactName": "Ben"})
	missing := uuid.New()

	rec := s.do(t, http.MethodPost, "/api/v1/leads/bulk-update", "broker", map[string]any{
		"ids":   []string{a.ID.String(), missing.String(), b.ID.String()},
		"patch": map[string]any{"status": "Viewing"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[transport.BulkReportResponse](t, rec)
	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	assert.Equal(t, "failure", report.Items[1].Outcome)

	rec = s.do(t, http.MethodPost, "/api/v1/leads/bulk-create", "broker", map[string]any{
		"leads": []map[string]any{{"contactName": "Cy"}, {"contactName": "Dee", "source": "Referral"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[transport.BulkReportResponse](t, rec).SuccessCount)

	rec = s.do(t, http.MethodPost, "/api/v1/leads/bulk-delete", "viewer", map[string]any{"ids": []string{a.ID.String()}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/leads/bulk-delete", "broker", map[string]any{"ids": []string{a.ID.String(), b.ID.String()}})
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode[transport.BulkReportResponse](t, rec)
	assert.Equal(t, 2, deleted.SuccessCount)
	assert.Equal(t, "Ada", deleted.Items[0].Label)

	rec = s.do(t, http.MethodPost, "/api/v1/leads/bulk-delete", "broker", map[string]any{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
