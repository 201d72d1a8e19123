package transport

import (
	"time"

	"broker_crm_backend/internal/auth/permissions"

	"github.com/google/uuid"
)

type UserResponse struct {
	ID              uuid.UUID          `json:"id"`
	Email           string             `json:"email"`
	Role            string             `json:"role"`
	DisplayName     string             `json:"displayName"`
	Permissions     permissions.Matrix `json:"permissions"`
	ManagingAdminID *uuid.UUID         `json:"managingAdminId,omitempty"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type UserListResponse struct {
	Users []UserResponse `json:"users"`
}

type UpdateMeRequest struct {
	DisplayName string `json:"displayName" validate:"required,min=1,max=120"`
}

type SetPermissionsRequest struct {
	Permissions permissions.Matrix `json:"permissions"`
}

// AccessRequestRequest names the capability being asked for. Action is
// ignored for flag modules.
type AccessRequestRequest struct {
	Module string `json:"module" validate:"required,capability_module"`
	Action string `json:"action" validate:"omitempty,capability_action"`
	Reason string `json:"reason" validate:"max=1000"`
}

type AccessRequestResponse struct {
	Status        string    `json:"status"`
	ManagingAdmin uuid.UUID `json:"managingAdminId"`
	Module        string    `json:"module"`
	Action        string    `json:"action,omitempty"`
}
