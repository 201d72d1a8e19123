package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs
type CreateLeadRequest struct {
	ContactName  string         `json:"contactName" validate:"required,min=1,max=200"`
	Email        OptionalString `json:"email,omitempty" validate:"-"`
	Phone        OptionalString `json:"phone,omitempty" validate:"-"`
	Message      OptionalString `json:"message,omitempty" validate:"-"`
	Status       string         `json:"status,omitempty" validate:"omitempty,lead_status"`
	Source       string         `json:"source,omitempty" validate:"omitempty,lead_source"`
	PropertyID   OptionalUUID   `json:"propertyId,omitempty" validate:"-"`
	Notes        OptionalString `json:"notes,omitempty" validate:"-"`
	FollowUpDate OptionalDate   `json:"followUpDate,omitempty" validate:"-"`
}

// UpdateLeadRequest is a partial update. Keys left out are untouched; null or
// "" clears the optional ones.
type UpdateLeadRequest struct {
	ContactName  OptionalString `json:"contactName,omitempty" validate:"-"`
	Email        OptionalString `json:"email,omitempty" validate:"-"`
	Phone        OptionalString `json:"phone,omitempty" validate:"-"`
	Message      OptionalString `json:"message,omitempty" validate:"-"`
	Status       OptionalString `json:"status,omitempty" validate:"-"`
	Source       OptionalString `json:"source,omitempty" validate:"-"`
	PropertyID   OptionalUUID   `json:"propertyId,omitempty" validate:"-"`
	Notes        OptionalString `json:"notes,omitempty" validate:"-"`
	FollowUpDate OptionalDate   `json:"followUpDate,omitempty" validate:"-"`
}

type BulkUpdateLeadsRequest struct {
	IDs   []uuid.UUID       `json:"ids" validate:"required,min=1,max=500"`
	Patch UpdateLeadRequest `json:"patch"`
}

type BulkDeleteLeadsRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
}

type BulkCreateLeadsRequest struct {
	Leads []CreateLeadRequest `json:"leads" validate:"required,min=1,max=500,dive"`
}

type ListLeadsRequest struct {
	Status   string `form:"status" validate:"omitempty,lead_status"`
	Query    string `form:"q" validate:"max=100"`
	Page     int    `form:"page" validate:"min=1"`
	PageSize int    `form:"pageSize" validate:"min=1,max=100"`
}

// Response DTOs
type LeadResponse struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    uuid.UUID  `json:"companyId"`
	ContactName  string     `json:"contactName"`
	Email        *string    `json:"email"`
	Phone        *string    `json:"phone"`
	Message      *string    `json:"message"`
	Status       string     `json:"status"`
	Source       string     `json:"source"`
	PropertyID   *uuid.UUID `json:"propertyId"`
	Notes        *string    `json:"notes"`
	FollowUpDate *string    `json:"followUpDate"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type LeadEventResponse struct {
	ID            uuid.UUID  `json:"id"`
	LeadID        uuid.UUID  `json:"leadId"`
	Type          string     `json:"type"`
	PreviousValue *string    `json:"previousValue"`
	NewValue      *string    `json:"newValue"`
	ActorID       *uuid.UUID `json:"actorId"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type LeadEventListResponse struct {
	Items []LeadEventResponse `json:"items"`
}

// UpdateLeadResponse carries the updated lead plus what the automation did with it.
type UpdateLeadResponse struct {
	Lead                  LeadResponse `json:"lead"`
	NotificationsQueued   []string     `json:"notificationsQueued"`
	SideEffectsIncomplete bool         `json:"sideEffectsIncomplete"`
}

type BulkItemResponse struct {
	Index   int        `json:"index"`
	ID      *uuid.UUID `json:"id,omitempty"`
	Label   string     `json:"label"`
	Outcome string     `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
}

type BulkReportResponse struct {
	Items        []BulkItemResponse `json:"items"`
	SuccessCount int                `json:"successCount"`
	FailureCount int                `json:"failureCount"`
}
