package repository

import (
	"context"

	"github.com/google/uuid"
)

// UserReader reads user credentials.
type UserReader interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (User, error)
}

// ProfileStore reads and updates profiles. Every company-scoped method matches
// only profiles within companyID.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error)
	GetProfileInCompany(ctx context.Context, companyID, userID uuid.UUID) (Profile, error)
	ListProfiles(ctx context.Context, companyID uuid.UUID) ([]Profile, error)
	UpdateDisplayName(ctx context.Context, companyID, userID uuid.UUID, displayName string) (Profile, error)
	SetPermissions(ctx context.Context, companyID, userID uuid.UUID, permissions []byte) (Profile, error)
}

// Ensure Repository implements both interfaces
var (
	_ UserReader   = (*Repository)(nil)
	_ ProfileStore = (*Repository)(nil)
)
