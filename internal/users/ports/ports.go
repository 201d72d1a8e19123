// Package ports defines what the users domain needs from other contexts.
package ports

import (
	"context"
	"errors"
	"time"

	"broker_crm_backend/internal/auth/permissions"

	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is a company member as the users domain sees it.
type Profile struct {
	UserID          uuid.UUID
	CompanyID       uuid.UUID
	Email           string
	Role            string
	DisplayName     string
	Permissions     permissions.Raw
	ManagingAdminID *uuid.UUID
	UpdatedAt       time.Time
}

// ProfileStore reads and updates profiles. Every method is scoped to companyID
// and returns ErrProfileNotFound for profiles outside it.
type ProfileStore interface {
	GetProfile(ctx context.Context, companyID, userID uuid.UUID) (Profile, error)
	ListProfiles(ctx context.Context, companyID uuid.UUID) ([]Profile, error)
	UpdateDisplayName(ctx context.Context, companyID, userID uuid.UUID, displayName string) (Profile, error)
	SetPermissions(ctx context.Context, companyID, userID uuid.UUID, matrix permissions.Matrix) (Profile, error)
}

// AccessRequest asks a managing admin to grant a capability.
type AccessRequest struct {
	Recipient      string
	RequesterID    uuid.UUID
	RequesterName  string
	RequesterEmail string
	Module         string
	Action         string
	Reason         string
}

type AccessRequestNotifier interface {
	NotifyAccessRequest(ctx context.Context, tenantID uuid.UUID, req AccessRequest) error
}
