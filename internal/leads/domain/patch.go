package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"broker_crm_backend/platform/apperr"

	"github.com/google/uuid"
)

// Optional distinguishes a field left out of a patch from one explicitly cleared.
// The zero value is absent.
type Optional[T any] struct {
	set   bool
	value *T
}

// Some is a present field with a value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{set: true, value: &v}
}

// Clear is a present field that must be written as null.
func Clear[T any]() Optional[T] {
	return Optional[T]{set: true}
}

// FromPtr is a present field; nil means clear.
func FromPtr[T any](v *T) Optional[T] {
	if v == nil {
		return Clear[T]()
	}
	return Some(*v)
}

// IsSet reports whether the field is present in the patch.
func (o Optional[T]) IsSet() bool { return o.set }

// IsClear reports whether the field is present and explicitly null.
func (o Optional[T]) IsClear() bool { return o.set && o.value == nil }

// Get returns the value when present and not cleared.
func (o Optional[T]) Get() (T, bool) {
	if o.value == nil {
		var zero T
		return zero, false
	}
	return *o.value, true
}

// Ptr returns the new value as a pointer; nil for clear or absent.
func (o Optional[T]) Ptr() *T {
	if o.value == nil {
		return nil
	}
	v := *o.value
	return &v
}

// Patch is a partial lead update. There is deliberately no company field.
type Patch struct {
	ContactName  Optional[string]
	Email        Optional[string]
	Phone        Optional[string]
	Message      Optional[string]
	Status       Optional[Status]
	Source       Optional[Source]
	PropertyID   Optional[uuid.UUID]
	Notes        Optional[string]
	FollowUpDate Optional[time.Time]
}

// IsEmpty reports whether the patch touches nothing.
func (p Patch) IsEmpty() bool {
	return !p.ContactName.IsSet() && !p.Email.IsSet() && !p.Phone.IsSet() && !p.Message.IsSet() &&
		!p.Status.IsSet() && !p.Source.IsSet() && !p.PropertyID.IsSet() && !p.Notes.IsSet() &&
		!p.FollowUpDate.IsSet()
}

// MaxContactNameLength matches the create request bound, counted in runes.
const MaxContactNameLength = 200

// Validate checks the patch shape.
func (p Patch) Validate() error {
	details := map[string]string{}
	if p.ContactName.IsSet() {
		name, ok := p.ContactName.Get()
		switch {
		case !ok || strings.TrimSpace(name) == "":
			details["contactName"] = "required"
		case utf8.RuneCountInString(name) > MaxContactNameLength:
			details["contactName"] = "max"
		}
	}
	if status, ok := p.Status.Get(); ok && !status.Valid() {
		details["status"] = "lead_status"
	} else if p.Status.IsClear() {
		details["status"] = "required"
	}
	if source, ok := p.Source.Get(); ok && !source.Valid() {
		details["source"] = "lead_source"
	} else if p.Source.IsClear() {
		details["source"] = "required"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid lead patch").WithDetails(details)
	}
	return nil
}

// Apply returns lead with the patch applied. Date values are truncated to dates.
func (p Patch) Apply(lead Lead) Lead {
	if v, ok := p.ContactName.Get(); ok {
		lead.ContactName = v
	}
	applyPtr(p.Email, &lead.Email)
	applyPtr(p.Phone, &lead.Phone)
	applyPtr(p.Message, &lead.Message)
	if v, ok := p.Status.Get(); ok {
		lead.Status = v
	}
	if v, ok := p.Source.Get(); ok {
		lead.Source = v
	}
	applyPtr(p.PropertyID, &lead.PropertyID)
	applyPtr(p.Notes, &lead.Notes)
	if p.FollowUpDate.IsSet() {
		lead.FollowUpDate = nil
		if d, ok := p.FollowUpDate.Get(); ok {
			day := DateOnly(d)
			lead.FollowUpDate = &day
		}
	}
	return lead
}

func applyPtr[T any](o Optional[T], dst **T) {
	if o.IsSet() {
		*dst = o.Ptr()
	}
}
