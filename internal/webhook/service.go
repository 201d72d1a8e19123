package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"broker_crm_backend/platform/apperr"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	duplicateWindow    = 60 * time.Second
	unknownContactName = "Website visitor"
)

// WebsiteLead is a lead captured from a public form.
type WebsiteLead struct {
	ContactName  string
	Email        *string
	Phone        *string
	Message      *string
	PropertyID   *uuid.UUID
	SourceDomain string
}

// LeadCreator creates leads on behalf of the intake. Implemented by an adapter
// over the leads context.
type LeadCreator interface {
	CreateWebsiteLead(ctx context.Context, tenantID uuid.UUID, lead WebsiteLead) (uuid.UUID, error)
}

// FormSubmission is an inbound form post after authentication.
type FormSubmission struct {
	Fields       map[string]string
	SourceDomain string
	APIKeyID     uuid.UUID
}

type FormSubmissionResponse struct {
	LeadID       uuid.UUID         `json:"leadId"`
	IsIncomplete bool              `json:"isIncomplete"`
	IsDuplicate  bool              `json:"isDuplicate"`
	Extracted    map[string]string `json:"extractedFields"`
	Message      string            `json:"message"`
}

// Service handles form submissions and API key management.
type Service struct {
	keys        KeyStore
	leads       LeadCreator
	phoneRegion string
	log         *logger.Logger
	window      time.Duration
}

func NewService(keys KeyStore, leads LeadCreator, phoneRegion string, log *logger.Logger) *Service {
	if phoneRegion == "" {
		phoneRegion = phone.DefaultRegion
	}
	return &Service{keys: keys, leads: leads, phoneRegion: phoneRegion, log: log, window: duplicateWindow}
}

// Authenticate resolves a plaintext key and checks the caller's origin
// against the key's domain allowlist.
func (s *Service) Authenticate(ctx context.Context, plaintext, origin string) (APIKey, error) {
	if plaintext == "" {
		return APIKey{}, apperr.Unauthorized("missing API key")
	}
	key, err := s.keys.GetByHash(ctx, HashKey(plaintext))
	if errors.Is(err, ErrAPIKeyNotFound) {
		return APIKey{}, apperr.Unauthorized("invalid API key")
	}
	if err != nil {
		return APIKey{}, apperr.StoreFailure("webhook.authenticate", err)
	}
	if len(key.AllowedDomains) > 0 && !isDomainAllowed(origin, key.AllowedDomains) {
		return APIKey{}, apperr.Forbidden("domain not allowed")
	}
	return key, nil
}

// ProcessFormSubmission turns a form post into a Website lead. A submission
// matching a lead created moments ago is answered with that lead instead.
func (s *Service) ProcessFormSubmission(ctx context.Context, sub FormSubmission, tenantID uuid.UUID) (FormSubmissionResponse, error) {
	extracted := ExtractFields(sub.Fields)
	if extracted.Phone != "" {
		// Stored phones are E.164, so the duplicate check must compare the same form.
		extracted.Phone = phone.NormalizeE164(extracted.Phone, s.phoneRegion)
	}
	isIncomplete := extracted.IsIncomplete()
	log := s.log.WithContext(ctx).With("tenantId", tenantID.String(), "domain", sub.SourceDomain)

	dupID, err := s.keys.FindRecentDuplicateLead(ctx, tenantID, extracted.Email, extracted.Phone, s.window)
	if err != nil {
		// A duplicate is cheaper than a lost lead.
		log.Warn("webhook: duplicate check failed", "error", err)
	} else if dupID != nil {
		log.Info("webhook: duplicate lead detected, skipping creation", "leadId", dupID.String())
		return FormSubmissionResponse{
			LeadID:       *dupID,
			IsIncomplete: isIncomplete,
			IsDuplicate:  true,
			Extracted:    buildExtractedMap(extracted),
			Message:      "Duplicate lead ignored",
		}, nil
	}

	lead := buildWebsiteLead(extracted, sub.SourceDomain)
	leadID, err := s.leads.CreateWebsiteLead(ctx, tenantID, lead)
	if err != nil && lead.PropertyID != nil && apperr.Is(err, apperr.KindValidation) {
		log.Warn("webhook: property reference rejected, creating lead without it", "propertyId", lead.PropertyID.String())
		lead.PropertyID = nil
		leadID, err = s.leads.CreateWebsiteLead(ctx, tenantID, lead)
	}
	if err != nil {
		log.Error("webhook: failed to create lead from form submission", "error", err)
		return FormSubmissionResponse{}, err
	}

	log.Info("webhook: lead captured", "leadId", leadID.String(), "incomplete", isIncomplete)
	return FormSubmissionResponse{
		LeadID:       leadID,
		IsIncomplete: isIncomplete,
		Extracted:    buildExtractedMap(extracted),
		Message:      buildWebhookMessage(isIncomplete),
	}, nil
}

// CreateAPIKey returns the stored key and its plaintext, which is never shown again.
func (s *Service) CreateAPIKey(ctx context.Context, tenantID uuid.UUID, name string, allowedDomains []string) (APIKey, string, error) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return APIKey{}, "", apperr.Internal("failed to generate API key")
	}

	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	key, err := s.keys.Create(ctx, tenantID, strings.TrimSpace(name), hash, prefix, domains)
	if err != nil {
		return APIKey{}, "", apperr.StoreFailure("webhook.create_key", err)
	}
	return key, plaintext, nil
}

func (s *Service) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error) {
	keys, err := s.keys.ListByCompany(ctx, tenantID)
	if err != nil {
		return nil, apperr.StoreFailure("webhook.list_keys", err)
	}
	return keys, nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, tenantID, keyID uuid.UUID) error {
	err := s.keys.Revoke(ctx, keyID, tenantID)
	if errors.Is(err, ErrAPIKeyNotFound) {
		return apperr.NotFound("API key not found")
	}
	if err != nil {
		return apperr.StoreFailure("webhook.revoke_key", err)
	}
	return nil
}

func buildWebsiteLead(extracted ExtractedFields, sourceDomain string) WebsiteLead {
	name := extracted.ContactName()
	if name == "" {
		name = unknownContactName
	}
	return WebsiteLead{
		ContactName:  name,
		Email:        nonEmpty(extracted.Email),
		Phone:        nonEmpty(extracted.Phone),
		Message:      nonEmpty(extracted.Message),
		PropertyID:   extracted.PropertyID,
		SourceDomain: sourceDomain,
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func buildExtractedMap(extracted ExtractedFields) map[string]string {
	result := map[string]string{}
	if extracted.FirstName != "" {
		result["firstName"] = extracted.FirstName
	}
	if extracted.LastName != "" {
		result["lastName"] = extracted.LastName
	}
	if extracted.Email != "" {
		result["email"] = extracted.Email
	}
	if extracted.Phone != "" {
		result["phone"] = extracted.Phone
	}
	if extracted.PropertyID != nil {
		result["propertyId"] = extracted.PropertyID.String()
	}
	return result
}

func buildWebhookMessage(isIncomplete bool) string {
	if isIncomplete {
		return "Lead created with incomplete data, manual review recommended"
	}
	return "Lead created successfully"
}
