package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryKeys struct {
	keys       map[uuid.UUID]APIKey
	recent     map[string]uuid.UUID
	dupErr     error
	dupQueries []string
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{keys: map[uuid.UUID]APIKey{}, recent: map[string]uuid.UUID{}}
}

func (m *memoryKeys) Create(_ context.Context, companyID uuid.UUID, name, keyHash, keyPrefix string, allowedDomains []string) (APIKey, error) {
	key := APIKey{
		ID: uuid.New(), CompanyID: companyID, Name: name, KeyHash: keyHash, KeyPrefix: keyPrefix,
		AllowedDomains: allowedDomains, IsActive: true, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	m.keys[key.ID] = key
	return key, nil
}

func (m *memoryKeys) GetByHash(_ context.Context, keyHash string) (APIKey, error) {
	for _, k := range m.keys {
		if k.KeyHash == keyHash && k.IsActive {
			return k, nil
		}
	}
	return APIKey{}, ErrAPIKeyNotFound
}

func (m *memoryKeys) ListByCompany(_ context.Context, companyID uuid.UUID) ([]APIKey, error) {
	var out []APIKey
	for _, k := range m.keys {
		if k.CompanyID == companyID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memoryKeys) Revoke(_ context.Context, keyID, companyID uuid.UUID) error {
	k, ok := m.keys[keyID]
	if !ok || k.CompanyID != companyID {
		return ErrAPIKeyNotFound
	}
	k.IsActive = false
	m.keys[keyID] = k
	return nil
}

func (m *memoryKeys) FindRecentDuplicateLead(_ context.Context, _ uuid.UUID, email, phone string, _ time.Duration) (*uuid.UUID, error) {
	m.dupQueries = append(m.dupQueries, email+"|"+phone)
	if m.dupErr != nil {
		return nil, m.dupErr
	}
	for _, v := range []string{email, phone} {
		if id, ok := m.recent[v]; ok && v != "" {
			return &id, nil
		}
	}
	return nil, nil
}

type recordingCreator struct {
	leads          []WebsiteLead
	rejectProperty bool
	err            error
}

func (r *recordingCreator) CreateWebsiteLead(_ context.Context, _ uuid.UUID, lead WebsiteLead) (uuid.UUID, error) {
	r.leads = append(r.leads, lead)
	if r.err != nil {
		return uuid.Nil, r.err
	}
	if r.rejectProperty && lead.PropertyID != nil {
		return uuid.Nil, apperr.Validation("property not found")
	}
	return uuid.New(), nil
}

var tenant = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func newTestService(keys *memoryKeys, creator *recordingCreator) *Service {
	return NewService(keys, creator, "US", logger.NewNop())
}

func TestAuthenticate(t *testing.T) {
	keys := newMemoryKeys()
	svc := newTestService(keys, &recordingCreator{})
	ctx := context.Background()

	open, openPlain, err := svc.CreateAPIKey(ctx, tenant, " Open ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Open", open.Name)
	assert.Equal(t, HashKey(openPlain), open.KeyHash)
	assert.Equal(t, openPlain[:12], open.KeyPrefix)

	_, lockedPlain, err := svc.CreateAPIKey(ctx, tenant, "Locked", []string{" Example.com ", ""})
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, openPlain, "")
	require.NoError(t, err)
	assert.Equal(t, tenant, got.CompanyID)

	_, err = svc.Authenticate(ctx, "", "https://example.com")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.Authenticate(ctx, "whk_bogus", "https://example.com")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = svc.Authenticate(ctx, lockedPlain, "https://evil.com")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = svc.Authenticate(ctx, lockedPlain, "https://example.com/contact")
	assert.NoError(t, err)
}

func TestRevokedKeyNoLongerAuthenticates(t *testing.T) {
	keys := newMemoryKeys()
	svc := newTestService(keys, &recordingCreator{})
	ctx := context.Background()

	key, plain, err := svc.CreateAPIKey(ctx, tenant, "Site", nil)
	require.NoError(t, err)

	err = svc.RevokeAPIKey(ctx, uuid.New(), key.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, svc.RevokeAPIKey(ctx, tenant, key.ID))
	_, err = svc.Authenticate(ctx, plain, "")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestProcessFormSubmissionCreatesWebsiteLead(t *testing.T) {
	keys := newMemoryKeys()
	creator := &recordingCreator{}
	svc := newTestService(keys, creator)

	resp, err := svc.ProcessFormSubmission(context.Background(), FormSubmission{
		Fields: map[string]string{
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"email":      "ADA@example.com",
			"phone":      "(650) 253-0000",
			"message":    "Call me",
		},
		SourceDomain: "https://example.com",
	}, tenant)
	require.NoError(t, err)

	assert.False(t, resp.IsDuplicate)
	assert.False(t, resp.IsIncomplete)
	assert.NotEqual(t, uuid.Nil, resp.LeadID)
	assert.Equal(t, "+16502530000", resp.Extracted["phone"])

	require.Len(t, creator.leads, 1)
	lead := creator.leads[0]
	assert.Equal(t, "Ada Lovelace", lead.ContactName)
	require.NotNil(t, lead.Email)
	assert.Equal(t, "ada@example.com", *lead.Email)
	require.NotNil(t, lead.Phone)
	assert.Equal(t, "+16502530000", *lead.Phone)
	assert.Equal(t, []string{"ada@example.com|+16502530000"}, keys.dupQueries)
}

func TestProcessFormSubmissionIncomplete(t *testing.T) {
	creator := &recordingCreator{}
	svc := newTestService(newMemoryKeys(), creator)

	resp, err := svc.ProcessFormSubmission(context.Background(), FormSubmission{
		Fields: map[string]string{"message": "Is this still available?"},
	}, tenant)
	require.NoError(t, err)

	assert.True(t, resp.IsIncomplete)
	require.Len(t, creator.leads, 1)
	assert.Equal(t, unknownContactName, creator.leads[0].ContactName)
	assert.Nil(t, creator.leads[0].Email)
	assert.Nil(t, creator.leads[0].Phone)
}

func TestProcessFormSubmissionDuplicate(t *testing.T) {
	keys := newMemoryKeys()
	existing := uuid.New()
	keys.recent["ada@example.com"] = existing
	creator := &recordingCreator{}
	svc := newTestService(keys, creator)

	resp, err := svc.ProcessFormSubmission(context.Background(), FormSubmission{
		Fields: map[string]string{"name": "Ada", "email": "ada@example.com"},
	}, tenant)
	require.NoError(t, err)

	assert.True(t, resp.IsDuplicate)
	assert.Equal(t, existing, resp.LeadID)
	assert.Empty(t, creator.leads)
}

func TestProcessFormSubmissionDuplicateCheckFailureStillCreates(t *testing.T) {
	keys := newMemoryKeys()
	keys.dupErr = errors.New("connection reset")
	creator := &recordingCreator{}
	svc := newTestService(keys, creator)

	_, err := svc.ProcessFormSubmission(context.Background(), FormSubmission{
		Fields: map[string]string{"name": "Ada", "email": "ada@example.com"},
	}, tenant)
	require.NoError(t, err)
	assert.Len(t, creator.leads, 1)
}

func TestProcessFormSubmissionDropsRejectedProperty(t *testing.T) {
	creator := &recordingCreator{rejectProperty: true}
	svc := newTestService(newMemoryKeys(), creator)

	_, err := svc.ProcessFormSubmission(context.Background(), FormSubmission{
		Fields: map[string]string{"name": "Ada", "email": "ada@example.com", "propertyId": uuid.NewString()},
	}, tenant)
	require.NoError(t, err)

	require.Len(t, creator.leads, 2)
	assert.NotNil(t, creator.leads[0].PropertyID)
	assert.Nil(t, creator.leads[1].PropertyID)
}

func TestProcessFormSubmissionPropagatesCreateFailure(t *testing.T) {
	creator := &recordingCreator{err: apperr.StoreFailure("leads.create", errors.New("boom"))}
	svc := newTestService(newMemoryKeys(), creator)

	_, err := svc.ProcessFormSubmission(context.Background(), FormSubmission{
		Fields: map[string]string{"name": "Ada", "email": "ada@example.com"},
	}, tenant)
	assert.True(t, apperr.Is(err, apperr.KindStoreFailure))
	assert.Len(t, creator.leads, 1)
}
