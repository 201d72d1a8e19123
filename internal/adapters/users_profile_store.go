package adapters

import (
	"context"
	"encoding/json"
	"errors"

	authrepo "broker_crm_backend/internal/auth/repository"
	"broker_crm_backend/internal/auth/permissions"
	"broker_crm_backend/internal/notification"
	"broker_crm_backend/internal/users/ports"

	"github.com/google/uuid"
)

// UsersProfileStore adapts the auth profile repository to the users domain.
// Matrices are always written in structured form.
type UsersProfileStore struct {
	profiles authrepo.ProfileStore
}

func NewUsersProfileStore(profiles authrepo.ProfileStore) *UsersProfileStore {
	return &UsersProfileStore{profiles: profiles}
}

func (s *UsersProfileStore) GetProfile(ctx context.Context, companyID, userID uuid.UUID) (ports.Profile, error) {
	p, err := s.profiles.GetProfileInCompany(ctx, companyID, userID)
	if err != nil {
		return ports.Profile{}, mapProfileError(err)
	}
	return toUsersProfile(p), nil
}

func (s *UsersProfileStore) ListProfiles(ctx context.Context, companyID uuid.UUID) ([]ports.Profile, error) {
	rows, err := s.profiles.ListProfiles(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]ports.Profile, 0, len(rows))
	for _, p := range rows {
		out = append(out, toUsersProfile(p))
	}
	return out, nil
}

func (s *UsersProfileStore) UpdateDisplayName(ctx context.Context, companyID, userID uuid.UUID, displayName string) (ports.Profile, error) {
	p, err := s.profiles.UpdateDisplayName(ctx, companyID, userID, displayName)
	if err != nil {
		return ports.Profile{}, mapProfileError(err)
	}
	return toUsersProfile(p), nil
}

func (s *UsersProfileStore) SetPermissions(ctx context.Context, companyID, userID uuid.UUID, matrix permissions.Matrix) (ports.Profile, error) {
	encoded, err := json.Marshal(matrix)
	if err != nil {
		return ports.Profile{}, err
	}
	p, err := s.profiles.SetPermissions(ctx, companyID, userID, encoded)
	if err != nil {
		return ports.Profile{}, mapProfileError(err)
	}
	return toUsersProfile(p), nil
}

func toUsersProfile(p authrepo.Profile) ports.Profile {
	return ports.Profile{
		UserID:          p.UserID,
		CompanyID:       p.CompanyID,
		Email:           p.Email,
		Role:            p.Role,
		DisplayName:     p.DisplayName,
		Permissions:     permissions.FromColumn(p.Permissions),
		ManagingAdminID: p.ManagingAdminID,
		UpdatedAt:       p.UpdatedAt,
	}
}

func mapProfileError(err error) error {
	if errors.Is(err, authrepo.ErrNotFound) {
		return ports.ErrProfileNotFound
	}
	return err
}

// UsersAccessRequestNotifier routes access requests into the notification outbox.
type UsersAccessRequestNotifier struct {
	notifications NotificationRequester
}

func NewUsersAccessRequestNotifier(notifications NotificationRequester) *UsersAccessRequestNotifier {
	return &UsersAccessRequestNotifier{notifications: notifications}
}

func (n *UsersAccessRequestNotifier) NotifyAccessRequest(ctx context.Context, tenantID uuid.UUID, req ports.AccessRequest) error {
	return n.notifications.Dispatch(ctx, tenantID, notification.Request{
		Recipient:   req.Recipient,
		TemplateKey: notification.TemplateAccessRequest,
		Data: map[string]string{
			"requesterId":    req.RequesterID.String(),
			"requesterName":  req.RequesterName,
			"requesterEmail": req.RequesterEmail,
			"module":         req.Module,
			"action":         req.Action,
			"reason":         req.Reason,
		},
	})
}

var (
	_ ports.ProfileStore          = (*UsersProfileStore)(nil)
	_ ports.AccessRequestNotifier = (*UsersAccessRequestNotifier)(nil)
)
