// Package adapter provides implementations of interfaces that other packages
// define for what they need from auth.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"broker_crm_backend/internal/auth/gate"
	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/internal/auth/repository"
	"broker_crm_backend/internal/auth/token"
	"broker_crm_backend/platform/apperr"

	"github.com/google/uuid"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	Verify(rawToken string) (token.Claims, error)
}

// ProfileReader loads profiles by user.
type ProfileReader interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (repository.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (repository.Profile, error)
}

// IdentityResolver implements gate.IdentityResolver on top of access tokens and
// the profiles table.
type IdentityResolver struct {
	tokens TokenVerifier
	repo   ProfileReader
}

// NewIdentityResolver creates a resolver.
func NewIdentityResolver(tokens TokenVerifier, repo ProfileReader) *IdentityResolver {
	return &IdentityResolver{tokens: tokens, repo: repo}
}

// Resolve implements gate.IdentityResolver.
func (r *IdentityResolver) Resolve(ctx context.Context, credentials string) (gate.Resolution, error) {
	claims, err := r.tokens.Verify(credentials)
	if err != nil {
		return gate.Resolution{}, err
	}

	user, err := r.repo.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return gate.Resolution{}, fmt.Errorf("resolve user: %w", err)
	}
	if err != nil {
		return gate.Resolution{}, apperr.StoreFailure("auth.resolve_user", err)
	}
	res := gate.Resolution{Identity: gate.Identity{UserID: user.ID, Email: user.Email}}

	profile, err := r.repo.GetProfile(ctx, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return gate.Resolution{}, apperr.StoreFailure("auth.resolve_profile", err)
	}

	// A token minted for another company no longer describes this session.
	if claims.TenantID != uuid.Nil && claims.TenantID != profile.CompanyID {
		return gate.Resolution{}, token.ErrInvalidToken
	}

	res.Profile = &gate.Profile{
		CompanyID:       profile.CompanyID,
		Role:            profile.Role,
		DisplayName:     profile.DisplayName,
		Permissions:     permissions.FromColumn(profile.Permissions),
		ManagingAdminID: profile.ManagingAdminID,
	}
	return res, nil
}

var _ gate.IdentityResolver = (*IdentityResolver)(nil)
