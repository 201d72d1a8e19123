package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/internal/auth/repository"
	"broker_crm_backend/internal/auth/token"
	"broker_crm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	users    map[uuid.UUID]repository.User
	profiles map[uuid.UUID]repository.Profile
	err      error
}

func (f *fakeProfiles) GetUserByID(_ context.Context, id uuid.UUID) (repository.User, error) {
	if f.err != nil {
		return repository.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return repository.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeProfiles) GetProfile(_ context.Context, id uuid.UUID) (repository.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return repository.Profile{}, repository.ErrNotFound
	}
	return p, nil
}

func TestResolveDecodesStoredProfile(t *testing.T) {
	tokens := token.NewManager("secret", time.Minute)
	userID, companyID := uuid.New(), uuid.New()
	repo := &fakeProfiles{
		users: map[uuid.UUID]repository.User{userID: {ID: userID, Email: "a@example.com"}},
		profiles: map[uuid.UUID]repository.Profile{userID: {
			UserID: userID, CompanyID: companyID, Role: "agent", DisplayName: "Ana",
			Permissions: []byte(`"{\"leads\":{\"view\":true}}"`),
		}},
	}
	raw, err := tokens.Issue(userID, companyID)
	require.NoError(t, err)

	res, err := NewIdentityResolver(tokens, repo).Resolve(context.Background(), raw)

	require.NoError(t, err)
	require.NotNil(t, res.Profile)
	assert.Equal(t, companyID, res.Profile.CompanyID)
	assert.True(t, res.Profile.Permissions.IsText())
	assert.True(t, permissions.Decode(res.Profile.Permissions).CanPerform(permissions.ModuleLeads, permissions.ActionView))
}

func TestResolveWithoutProfile(t *testing.T) {
	tokens := token.NewManager("secret", time.Minute)
	userID := uuid.New()
	repo := &fakeProfiles{
		users:    map[uuid.UUID]repository.User{userID: {ID: userID}},
		profiles: map[uuid.UUID]repository.Profile{},
	}
	raw, err := tokens.Issue(userID, uuid.New())
	require.NoError(t, err)

	res, err := NewIdentityResolver(tokens, repo).Resolve(context.Background(), raw)
	require.NoError(t, err)
	assert.Nil(t, res.Profile)
}

func TestResolveRejectsTenantMismatch(t *testing.T) {
	tokens := token.NewManager("secret", time.Minute)
	userID := uuid.New()
	repo := &fakeProfiles{
		users:    map[uuid.UUID]repository.User{userID: {ID: userID}},
		profiles: map[uuid.UUID]repository.Profile{userID: {UserID: userID, CompanyID: uuid.New()}},
	}
	raw, err := tokens.Issue(userID, uuid.New())
	require.NoError(t, err)

	_, err = NewIdentityResolver(tokens, repo).Resolve(context.Background(), raw)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestResolveSeparatesOutageFromUnknownUser(t *testing.T) {
	tokens := token.NewManager("secret", time.Minute)
	userID := uuid.New()
	raw, err := tokens.Issue(userID, uuid.New())
	require.NoError(t, err)

	_, err = NewIdentityResolver(tokens, &fakeProfiles{}).Resolve(context.Background(), raw)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.False(t, apperr.Is(err, apperr.KindStoreFailure))

	down := &fakeProfiles{err: errors.New("connection refused")}
	_, err = NewIdentityResolver(tokens, down).Resolve(context.Background(), raw)
	assert.True(t, apperr.Is(err, apperr.KindStoreFailure))
}
