package adapters

import (
	"context"

	"broker_crm_backend/internal/leads/automation"
	"broker_crm_backend/internal/leads/domain"
	leadsvc "broker_crm_backend/internal/leads/service"
	"broker_crm_backend/internal/leads/transport"
	"broker_crm_backend/internal/webhook"

	"github.com/google/uuid"
)

const websiteFormActor = "Website form"

// LeadCreateService is the slice of the leads service used by website intake.
type LeadCreateService interface {
	Create(ctx context.Context, tenantID uuid.UUID, actor automation.Actor, req transport.CreateLeadRequest) (transport.LeadResponse, error)
}

// WebhookLeadCreator lets website intake create leads through the normal
// lead lifecycle so automation rules and the ledger apply.
type WebhookLeadCreator struct {
	leads LeadCreateService
}

func NewWebhookLeadCreator(leads LeadCreateService) *WebhookLeadCreator {
	return &WebhookLeadCreator{leads: leads}
}

func (a *WebhookLeadCreator) CreateWebsiteLead(ctx context.Context, tenantID uuid.UUID, lead webhook.WebsiteLead) (uuid.UUID, error) {
	req := transport.CreateLeadRequest{
		ContactName: lead.ContactName,
		Email:       optionalString(lead.Email),
		Phone:       optionalString(lead.Phone),
		Message:     optionalString(lead.Message),
		Source:      string(domain.SourceWebsite),
	}
	if lead.PropertyID != nil {
		req.PropertyID = transport.OptionalUUID{Value: lead.PropertyID, Set: true}
	}

	created, err := a.leads.Create(ctx, tenantID, automation.Actor{DisplayName: websiteFormActor}, req)
	if err != nil {
		return uuid.Nil, err
	}
	return created.ID, nil
}

func optionalString(v *string) transport.OptionalString {
	return transport.OptionalString{Value: v, Set: v != nil}
}

var (
	_ webhook.LeadCreator = (*WebhookLeadCreator)(nil)
	_ LeadCreateService   = (*leadsvc.Service)(nil)
)
