package service

import (
	"context"
	"errors"

	"broker_crm_backend/internal/auth/password"
	"broker_crm_backend/internal/auth/repository"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

// Repository is what sign-in needs from storage.
type Repository interface {
	GetUserByEmail(ctx context.Context, email string) (repository.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (repository.Profile, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID, tenantID uuid.UUID) (string, error)
}

type Service struct {
	repo   Repository
	tokens TokenIssuer
	log    *logger.Logger
}

func New(repo Repository, tokens TokenIssuer, log *logger.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, log: log}
}

// SignIn checks the password and issues an access token scoped to the user's company.
// Unknown emails, wrong passwords and users without a profile all look the same to the caller.
func (s *Service) SignIn(ctx context.Context, email, plainPassword string) (string, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.DatabaseError("auth.get_user_by_email", err)
			return "", apperr.StoreFailure("auth.sign_in", err)
		}
		s.log.AuthEvent("sign_in", email, false, "unknown email")
		return "", errInvalidCredentials
	}

	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		s.log.AuthEvent("sign_in", email, false, "password mismatch")
		return "", errInvalidCredentials
	}

	profile, err := s.repo.GetProfile(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.DatabaseError("auth.get_profile", err)
			return "", apperr.StoreFailure("auth.sign_in", err)
		}
		s.log.AuthEvent("sign_in", email, false, "no profile")
		return "", errInvalidCredentials
	}

	accessToken, err := s.tokens.Issue(user.ID, profile.CompanyID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "could not issue token", err)
	}

	s.log.AuthEvent("sign_in", email, true, "")
	return accessToken, nil
}
