// Package service holds the users application logic: profile reads, profile
// edits, permission management and access requests.
package service

import (
	"context"
	"errors"
	"strings"

	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/internal/users/ports"
	"broker_crm_backend/internal/users/transport"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/sanitize"

	"github.com/google/uuid"
)

const statusQueued = "queued"

// Requester is the caller asking for more access, as established by the gate.
type Requester struct {
	UserID          uuid.UUID
	TenantID        uuid.UUID
	Email           string
	DisplayName     string
	Matrix          permissions.Matrix
	ManagingAdminID *uuid.UUID
}

type Service struct {
	profiles ports.ProfileStore
	notifier ports.AccessRequestNotifier
	log      *logger.Logger
}

func New(profiles ports.ProfileStore, notifier ports.AccessRequestNotifier, log *logger.Logger) *Service {
	return &Service{profiles: profiles, notifier: notifier, log: log}
}

func (s *Service) GetMe(ctx context.Context, tenantID, userID uuid.UUID) (transport.UserResponse, error) {
	p, err := s.profiles.GetProfile(ctx, tenantID, userID)
	if err != nil {
		return transport.UserResponse{}, mapProfileError("users.get_me", err)
	}
	return toUserResponse(p), nil
}

func (s *Service) UpdateMe(ctx context.Context, tenantID, userID uuid.UUID, req transport.UpdateMeRequest) (transport.UserResponse, error) {
	name := sanitize.Text(req.DisplayName)
	if name == "" {
		return transport.UserResponse{}, apperr.Validation("display name is required").
			WithDetails(map[string]string{"displayName": "required"})
	}

	p, err := s.profiles.UpdateDisplayName(ctx, tenantID, userID, name)
	if err != nil {
		return transport.UserResponse{}, mapProfileError("users.update_me", err)
	}
	return toUserResponse(p), nil
}

func (s *Service) ListUsers(ctx context.Context, tenantID uuid.UUID) (transport.UserListResponse, error) {
	rows, err := s.profiles.ListProfiles(ctx, tenantID)
	if err != nil {
		return transport.UserListResponse{}, apperr.StoreFailure("users.list", err)
	}
	out := make([]transport.UserResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, toUserResponse(p))
	}
	return transport.UserListResponse{Users: out}, nil
}

// SetPermissions replaces the matrix of a profile in the caller's tenant.
func (s *Service) SetPermissions(ctx context.Context, tenantID, userID uuid.UUID, req transport.SetPermissionsRequest) (transport.UserResponse, error) {
	p, err := s.profiles.SetPermissions(ctx, tenantID, userID, req.Permissions)
	if err != nil {
		return transport.UserResponse{}, mapProfileError("users.set_permissions", err)
	}
	s.log.WithContext(ctx).Info("permissions updated", "targetUserId", userID.String(), "tenantId", tenantID.String())
	return toUserResponse(p), nil
}

// RequestAccess notifies the requester's managing admin that a capability is wanted.
func (s *Service) RequestAccess(ctx context.Context, requester Requester, req transport.AccessRequestRequest) (transport.AccessRequestResponse, error) {
	module := permissions.Module(req.Module)
	action := permissions.Action(req.Action)
	if module.IsFlag() {
		action = ""
	} else if action == "" {
		return transport.AccessRequestResponse{}, apperr.Validation("invalid access request").
			WithDetails(map[string]string{"action": "required"})
	}

	if requester.Matrix.CanPerform(module, action) {
		return transport.AccessRequestResponse{}, apperr.Conflict("capability already granted")
	}
	if requester.ManagingAdminID == nil {
		return transport.AccessRequestResponse{}, apperr.NotFound("no managing admin assigned")
	}

	admin, err := s.profiles.GetProfile(ctx, requester.TenantID, *requester.ManagingAdminID)
	if err != nil {
		if errors.Is(err, ports.ErrProfileNotFound) {
			return transport.AccessRequestResponse{}, apperr.NotFound("managing admin not found")
		}
		return transport.AccessRequestResponse{}, apperr.StoreFailure("users.request_access", err)
	}

	name := strings.TrimSpace(requester.DisplayName)
	if name == "" {
		name = requester.Email
	}
	err = s.notifier.NotifyAccessRequest(ctx, requester.TenantID, ports.AccessRequest{
		Recipient:      admin.Email,
		RequesterID:    requester.UserID,
		RequesterName:  name,
		RequesterEmail: requester.Email,
		Module:         string(module),
		Action:         string(action),
		Reason:         sanitize.Text(req.Reason),
	})
	if err != nil {
		return transport.AccessRequestResponse{}, apperr.NotificationFailure("access_request", err)
	}

	return transport.AccessRequestResponse{
		Status:        statusQueued,
		ManagingAdmin: admin.UserID,
		Module:        string(module),
		Action:        string(action),
	}, nil
}

func toUserResponse(p ports.Profile) transport.UserResponse {
	return transport.UserResponse{
		ID:              p.UserID,
		Email:           p.Email,
		Role:            p.Role,
		DisplayName:     p.DisplayName,
		Permissions:     permissions.Decode(p.Permissions),
		ManagingAdminID: p.ManagingAdminID,
		UpdatedAt:       p.UpdatedAt,
	}
}

func mapProfileError(op string, err error) error {
	if errors.Is(err, ports.ErrProfileNotFound) {
		return apperr.NotFound("user not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.StoreFailure(op, err)
}
