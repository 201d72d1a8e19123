// Package gate resolves the caller behind a request and decides whether it may
// proceed. It never mutates state.
package gate

import (
	"context"

	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Identity is an authenticated principal as established by its credentials.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// Profile is the stored per-user record attached to an identity.
type Profile struct {
	CompanyID       uuid.UUID
	Role            string
	DisplayName     string
	Permissions     permissions.Raw
	ManagingAdminID *uuid.UUID
}

// Resolution is what an IdentityResolver knows about a caller. Profile is nil
// when the identity has no profile attached.
type Resolution struct {
	Identity Identity
	Profile  *Profile
}

// IdentityResolver turns request credentials into an identity and its profile.
// It returns an error when the credentials do not describe a valid session.
type IdentityResolver interface {
	Resolve(ctx context.Context, credentials string) (Resolution, error)
}

// AuthorizedContext is the outcome of a successful gate check. TenantID always
// comes from the stored profile, never from client input.
type AuthorizedContext struct {
	UserID          uuid.UUID
	TenantID        uuid.UUID
	Email           string
	Role            string
	DisplayName     string
	Matrix          permissions.Matrix
	ManagingAdminID *uuid.UUID
}

// Can reports whether the caller holds a capability.
func (a AuthorizedContext) Can(module permissions.Module, action permissions.Action) bool {
	return a.Matrix.CanPerform(module, action)
}

// Gate evaluates authorization verdicts.
type Gate struct {
	resolver IdentityResolver
	log      *logger.Logger
}

// New creates a Gate.
func New(resolver IdentityResolver, log *logger.Logger) *Gate {
	return &Gate{resolver: resolver, log: log}
}

// RequireAuthenticated resolves the caller and its profile without checking any capability.
func (g *Gate) RequireAuthenticated(ctx context.Context, credentials string) (AuthorizedContext, error) {
	if credentials == "" {
		return AuthorizedContext{}, apperr.Unauthorized("authentication required")
	}

	res, err := g.resolver.Resolve(ctx, credentials)
	if apperr.Is(err, apperr.KindStoreFailure) {
		g.log.WithContext(ctx).Error("identity resolution unavailable", "error", err)
		return AuthorizedContext{}, err
	}
	if err != nil {
		g.log.WithContext(ctx).Debug("identity resolution failed", "error", err)
		return AuthorizedContext{}, apperr.Unauthorized("authentication required")
	}
	if res.Profile == nil {
		g.log.WithContext(ctx).Warn("identity has no profile", "user_id", res.Identity.UserID)
		return AuthorizedContext{}, apperr.Unauthorized("authentication required")
	}

	matrix, decodeErr := permissions.DecodeStrict(res.Profile.Permissions)
	if decodeErr != nil {
		g.log.WithContext(ctx).Warn("permission matrix could not be fully decoded",
			"user_id", res.Identity.UserID, "error", decodeErr)
	}

	return AuthorizedContext{
		UserID:          res.Identity.UserID,
		TenantID:        res.Profile.CompanyID,
		Email:           res.Identity.Email,
		Role:            res.Profile.Role,
		DisplayName:     res.Profile.DisplayName,
		Matrix:          matrix,
		ManagingAdminID: res.Profile.ManagingAdminID,
	}, nil
}

// Authorize resolves the caller and checks that it may perform action on module.
func (g *Gate) Authorize(ctx context.Context, credentials string, module permissions.Module, action permissions.Action) (AuthorizedContext, error) {
	ac, err := g.RequireAuthenticated(ctx, credentials)
	if err != nil {
		return AuthorizedContext{}, err
	}
	return ac, Check(ac, module, action)
}

// Check applies the capability step to an already authenticated caller.
func Check(ac AuthorizedContext, module permissions.Module, action permissions.Action) error {
	if !ac.Can(module, action) {
		return apperr.Forbidden("insufficient permissions").WithDetails(map[string]string{
			"module": string(module),
			"action": string(action),
		})
	}
	return nil
}
