package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of fact a ledger entry records.
type EventType string

const (
	EventCreated          EventType = "created"
	EventStatusChanged    EventType = "status_changed"
	EventNoteAdded        EventType = "note_added"
	EventPropertyAssigned EventType = "property_assigned"
)

// UnassignedProperty stands in for a missing property reference in ledger values.
const UnassignedProperty = "Unassigned"

// LeadEvent is one immutable entry in a lead's audit trail. Seq breaks ties
// between entries written within the same instant.
type LeadEvent struct {
	ID            uuid.UUID
	LeadID        uuid.UUID
	CompanyID     uuid.UUID
	Type          EventType
	PreviousValue *string
	NewValue      *string
	ActorID       *uuid.UUID
	CreatedAt     time.Time
	Seq           int64
}

// NewLeadEvent is the input for appending a ledger entry.
type NewLeadEvent struct {
	LeadID        uuid.UUID
	CompanyID     uuid.UUID
	Type          EventType
	PreviousValue *string
	NewValue      *string
	ActorID       *uuid.UUID
}

// PropertyValue renders a property reference for the ledger.
func PropertyValue(id *uuid.UUID) string {
	if id == nil {
		return UnassignedProperty
	}
	return id.String()
}
