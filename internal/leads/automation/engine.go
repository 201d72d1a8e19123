// Package automation is the lead state-transition policy. It applies a change
// to a lead, then decides which ledger entries to append and which
// notifications to send by comparing the lead before and after.
//
// The primary write is the only step that can fail an operation. Ledger and
// notification failures after it are logged and returned on the side.
package automation

import (
	"context"
	"errors"
	"strings"
	"time"

	"broker_crm_backend/internal/leads/domain"
	"broker_crm_backend/internal/leads/ports"
	"broker_crm_backend/internal/leads/repository"
	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/phone"
	"broker_crm_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	// FollowUpDays is how far out a follow-up is scheduled when a lead is first contacted.
	FollowUpDays = 3
	// GeneralInquiry names the subject of a lead without a property.
	GeneralInquiry = "General Inquiry"
)

// Store is the lead persistence the engine drives.
type Store interface {
	repository.LeadReader
	repository.LeadWriter
}

// Actor is whoever is making the change. A zero UserID is a system actor.
type Actor struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
}

func (a Actor) id() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

func (a Actor) name() string {
	if strings.TrimSpace(a.DisplayName) != "" {
		return a.DisplayName
	}
	if a.Email != "" {
		return a.Email
	}
	return "Your broker"
}

// UpdateResult is the outcome of a committed update.
type UpdateResult struct {
	Lead             domain.Lead
	Notifications    []ports.Notification
	SideEffectErrors []error
}

// CreateResult is the outcome of a committed creation.
type CreateResult struct {
	Lead             domain.Lead
	SideEffectErrors []error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for follow-up scheduling.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPhoneRegion sets the region used to normalize phone numbers without a country code.
func WithPhoneRegion(region string) Option {
	return func(e *Engine) { e.phoneRegion = region }
}

// Engine applies lead mutations and their automation rules.
type Engine struct {
	store       Store
	ledger      repository.EventLedger
	properties  repository.PropertyDirectory
	notifier    ports.NotificationDispatcher
	location    *time.Location
	phoneRegion string
	now         func() time.Time
	log         *logger.Logger
}

// New creates an Engine. location is the business time zone that decides what "today" is.
func New(store Store, ledger repository.EventLedger, properties repository.PropertyDirectory, notifier ports.NotificationDispatcher, location *time.Location, log *logger.Logger, opts ...Option) *Engine {
	if location == nil {
		location = time.UTC
	}
	e := &Engine{
		store:       store,
		ledger:      ledger,
		properties:  properties,
		notifier:    notifier,
		location:    location,
		phoneRegion: phone.DefaultRegion,
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create stores a new lead and records exactly one created entry for it.
func (e *Engine) Create(ctx context.Context, params domain.NewLead, actor Actor) (CreateResult, error) {
	params = e.normalizeNew(params).WithDefaults()
	if err := validateNew(params); err != nil {
		return CreateResult{}, err
	}
	if err := e.checkProperty(ctx, params.CompanyID, params.PropertyID); err != nil {
		return CreateResult{}, err
	}

	lead, err := e.store.Create(ctx, params)
	if err != nil {
		return CreateResult{}, apperr.StoreFailure("lead.create", err)
	}

	effects := e.sideEffects(ctx, lead.ID)
	effects.run("ledger.created", func() error {
		return e.append(ctx, lead, domain.EventCreated, nil, strPtr(string(lead.Status)), actor)
	})

	return CreateResult{Lead: lead, SideEffectErrors: effects.errs}, nil
}

// ApplyUpdate reads the current lead, applies patch and runs every diff rule
// against the snapshot it read.
func (e *Engine) ApplyUpdate(ctx context.Context, tenantID, leadID uuid.UUID, patch domain.Patch, actor Actor) (UpdateResult, error) {
	patch = e.normalizePatch(patch)
	if err := patch.Validate(); err != nil {
		return UpdateResult{}, err
	}

	oldLead, err := e.store.Get(ctx, tenantID, leadID)
	if err != nil {
		return UpdateResult{}, mapStoreError("lead.get", err)
	}

	if newPropertyID, ok := patch.PropertyID.Get(); ok {
		if err := e.checkProperty(ctx, tenantID, &newPropertyID); err != nil {
			return UpdateResult{}, err
		}
	}

	patch = e.injectFollowUp(patch)

	newLead, err := e.store.Update(ctx, tenantID, leadID, patch)
	if err != nil {
		return UpdateResult{}, mapStoreError("lead.update", err)
	}

	effects := e.sideEffects(ctx, leadID)
	result := UpdateResult{Lead: newLead}

	if newLead.Status != oldLead.Status {
		effects.run("ledger.status_changed", func() error {
			return e.recordStatusChange(ctx, oldLead, newLead, actor)
		})
		if newLead.HasEmail() {
			n := e.statusNotification(ctx, effects, oldLead, newLead, actor)
			effects.run("notification."+n.TemplateKey, func() error {
				if err := e.notifier.Dispatch(ctx, tenantID, n); err != nil {
					return apperr.NotificationFailure(n.TemplateKey, err)
				}
				result.Notifications = append(result.Notifications, n)
				return nil
			})
		}
	}

	oldNotes, newNotes := deref(oldLead.Notes), deref(newLead.Notes)
	if newNotes != oldNotes && newNotes != "" {
		effects.run("ledger.note_added", func() error {
			return e.append(ctx, newLead, domain.EventNoteAdded, oldLead.Notes, newLead.Notes, actor)
		})
	}

	if patch.PropertyID.IsSet() && !sameUUID(oldLead.PropertyID, newLead.PropertyID) {
		effects.run("ledger.property_assigned", func() error {
			return e.append(ctx, newLead, domain.EventPropertyAssigned,
				strPtr(domain.PropertyValue(oldLead.PropertyID)),
				strPtr(domain.PropertyValue(newLead.PropertyID)), actor)
		})
	}

	result.SideEffectErrors = effects.errs
	return result, nil
}

// RecordStatusChange appends a status_changed entry when the two snapshots differ.
// Bulk updates use it as their only automation rule.
func (e *Engine) RecordStatusChange(ctx context.Context, oldLead, newLead domain.Lead, actor Actor) []error {
	if oldLead.Status == newLead.Status {
		return nil
	}
	effects := e.sideEffects(ctx, newLead.ID)
	effects.run("ledger.status_changed", func() error {
		return e.recordStatusChange(ctx, oldLead, newLead, actor)
	})
	return effects.errs
}

// CheckProperty reports a Validation error when propertyID does not belong to
// tenantID. A nil id always passes.
func (e *Engine) CheckProperty(ctx context.Context, tenantID uuid.UUID, propertyID *uuid.UUID) error {
	return e.checkProperty(ctx, tenantID, propertyID)
}

// NormalizePatch cleans free text and phone numbers the same way single updates do.
func (e *Engine) NormalizePatch(patch domain.Patch) domain.Patch {
	return e.normalizePatch(patch)
}

func (e *Engine) recordStatusChange(ctx context.Context, oldLead, newLead domain.Lead, actor Actor) error {
	return e.append(ctx, newLead, domain.EventStatusChanged,
		strPtr(string(oldLead.Status)), strPtr(string(newLead.Status)), actor)
}

// injectFollowUp schedules a follow-up when the patch moves a lead to Contacted
// without saying anything about the follow-up date. A supplied date, including
// an explicit clear, always wins.
func (e *Engine) injectFollowUp(patch domain.Patch) domain.Patch {
	status, ok := patch.Status.Get()
	if !ok || status != domain.StatusContacted || patch.FollowUpDate.IsSet() {
		return patch
	}
	patch.FollowUpDate = domain.Some(domain.FollowUpAfter(e.now(), e.location, FollowUpDays))
	return patch
}

func (e *Engine) statusNotification(ctx context.Context, effects *sideEffects, oldLead, newLead domain.Lead, actor Actor) ports.Notification {
	title := GeneralInquiry
	if newLead.PropertyID != nil {
		t, err := e.properties.PropertyTitle(ctx, newLead.CompanyID, *newLead.PropertyID)
		switch {
		case err == nil && strings.TrimSpace(t) != "":
			title = t
		case err != nil && !errors.Is(err, repository.ErrPropertyNotFound):
			effects.record("notification.property_title", apperr.StoreFailure("property.title", err))
		}
	}

	return ports.Notification{
		Recipient:   *newLead.Email,
		TemplateKey: ports.TemplateLeadStatusChanged,
		Data: map[string]string{
			"leadId":        newLead.ID.String(),
			"leadName":      newLead.ContactName,
			"oldStatus":     string(oldLead.Status),
			"newStatus":     string(newLead.Status),
			"propertyTitle": title,
			"brokerName":    actor.name(),
		},
	}
}

func (e *Engine) append(ctx context.Context, lead domain.Lead, typ domain.EventType, prev, next *string, actor Actor) error {
	_, err := e.ledger.Append(ctx, domain.NewLeadEvent{
		LeadID:        lead.ID,
		CompanyID:     lead.CompanyID,
		Type:          typ,
		PreviousValue: prev,
		NewValue:      next,
		ActorID:       actor.id(),
	})
	if err != nil {
		return apperr.StoreFailure("ledger.append", err)
	}
	return nil
}

func (e *Engine) checkProperty(ctx context.Context, tenantID uuid.UUID, propertyID *uuid.UUID) error {
	if propertyID == nil {
		return nil
	}
	_, err := e.properties.PropertyTitle(ctx, tenantID, *propertyID)
	if errors.Is(err, repository.ErrPropertyNotFound) {
		return apperr.Validation("invalid lead").WithDetails(map[string]string{"propertyId": "not_found"})
	}
	if err != nil {
		return apperr.StoreFailure("property.title", err)
	}
	return nil
}

func (e *Engine) normalizeNew(params domain.NewLead) domain.NewLead {
	params.ContactName = sanitize.Text(params.ContactName)
	params.Email = trimmedOrNil(params.Email)
	params.Message = emptyToNil(sanitize.TextPtr(params.Message))
	params.Notes = emptyToNil(sanitize.TextPtr(params.Notes))
	if p := trimmedOrNil(params.Phone); p != nil {
		normalized := phone.NormalizeE164(*p, e.phoneRegion)
		params.Phone = &normalized
	} else {
		params.Phone = nil
	}
	return params
}

func (e *Engine) normalizePatch(patch domain.Patch) domain.Patch {
	if v, ok := patch.ContactName.Get(); ok {
		patch.ContactName = domain.Some(sanitize.Text(v))
	}
	patch.Email = mapOptional(patch.Email, strings.TrimSpace)
	patch.Message = mapOptional(patch.Message, sanitize.Text)
	patch.Notes = mapOptional(patch.Notes, sanitize.Text)
	patch.Phone = mapOptional(patch.Phone, func(s string) string { return phone.NormalizeE164(s, e.phoneRegion) })
	return patch
}

// mapOptional transforms a present value; a value that becomes empty is a clear.
func mapOptional(o domain.Optional[string], fn func(string) string) domain.Optional[string] {
	v, ok := o.Get()
	if !ok {
		return o
	}
	v = fn(v)
	if v == "" {
		return domain.Clear[string]()
	}
	return domain.Some(v)
}

func validateNew(params domain.NewLead) error {
	details := map[string]string{}
	if params.CompanyID == uuid.Nil {
		details["companyId"] = "required"
	}
	if strings.TrimSpace(params.ContactName) == "" {
		details["contactName"] = "required"
	}
	if !params.Status.Valid() {
		details["status"] = "lead_status"
	}
	if !params.Source.Valid() {
		details["source"] = "lead_source"
	}
	if len(details) > 0 {
		return apperr.Validation("invalid lead").WithDetails(details)
	}
	return nil
}

func mapStoreError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("lead not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.StoreFailure(op, err)
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	return emptyToNil(strPtr(strings.TrimSpace(*s)))
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
