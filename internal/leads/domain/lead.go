// Package domain provides core business rules for the leads bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a lead.
type Status string

const (
	StatusNew         Status = "New"
	StatusContacted   Status = "Contacted"
	StatusViewing     Status = "Viewing"
	StatusNegotiation Status = "Negotiation"
	StatusWon         Status = "Won"
	StatusLost        Status = "Lost"
)

// Statuses lists every valid status in pipeline order.
func Statuses() []string {
	return []string{
		string(StatusNew), string(StatusContacted), string(StatusViewing),
		string(StatusNegotiation), string(StatusWon), string(StatusLost),
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return contains(Statuses(), string(s))
}

// Source is the channel a lead arrived through.
type Source string

const (
	SourceWhatsApp Source = "WhatsApp"
	SourceWebsite  Source = "Website"
	SourceReferral Source = "Referral"
	SourceOther    Source = "Other"
)

// Sources lists every valid source.
func Sources() []string {
	return []string{string(SourceWhatsApp), string(SourceWebsite), string(SourceReferral), string(SourceOther)}
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return contains(Sources(), string(s))
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Lead is a prospective buyer or tenant inquiry. CompanyID is fixed at creation.
type Lead struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	ContactName  string
	Email        *string
	Phone        *string
	Message      *string
	Status       Status
	Source       Source
	PropertyID   *uuid.UUID
	Notes        *string
	FollowUpDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Label is a human-readable identifier used in bulk reports.
func (l Lead) Label() string {
	if l.ContactName != "" {
		return l.ContactName
	}
	return l.ID.String()
}

// HasEmail reports whether a contact email is on file.
func (l Lead) HasEmail() bool {
	return l.Email != nil && *l.Email != ""
}

// NewLead is the input for creating a lead. CompanyID must come from the
// caller's profile, never from client input.
type NewLead struct {
	CompanyID    uuid.UUID
	ContactName  string
	Email        *string
	Phone        *string
	Message      *string
	Status       Status
	Source       Source
	PropertyID   *uuid.UUID
	Notes        *string
	FollowUpDate *time.Time
}

// WithDefaults fills status and source when unspecified.
func (n NewLead) WithDefaults() NewLead {
	if n.Status == "" {
		n.Status = StatusNew
	}
	if n.Source == "" {
		n.Source = SourceOther
	}
	if n.FollowUpDate != nil {
		d := DateOnly(*n.FollowUpDate)
		n.FollowUpDate = &d
	}
	return n
}

// ListParams filters a tenant's leads.
type ListParams struct {
	Status *Status
	// Search matches contact name, email or phone, case-insensitively.
	Search string
	Limit  int
	Offset int
}

// DateOnly truncates t to its calendar date, keeping t's own wall clock, and
// returns midnight UTC for that date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FollowUpAfter returns the calendar date days after now in loc.
func FollowUpAfter(now time.Time, loc *time.Location, days int) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOnly(now.In(loc)).AddDate(0, 0, days)
}
