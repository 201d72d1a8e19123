package email

import (
	"context"

	"broker_crm_backend/platform/config"
)

// LeadStatusChanged is what a lead's contact is told when their inquiry moves stage.
type LeadStatusChanged struct {
	LeadName      string
	OldStatus     string
	NewStatus     string
	PropertyTitle string
	BrokerName    string
}

// AccessRequest is what a managing admin is told when an agent asks for a capability.
type AccessRequest struct {
	RequesterName  string
	RequesterEmail string
	Module         string
	Action         string
	Reason         string
	ReviewURL      string
}

// Sender delivers rendered notification emails.
type Sender interface {
	SendLeadStatusChangedEmail(ctx context.Context, toEmail string, data LeadStatusChanged) error
	SendAccessRequestEmail(ctx context.Context, toEmail string, data AccessRequest) error
}

// NoopSender drops every email. It is used when delivery is disabled.
type NoopSender struct{}

func (NoopSender) SendLeadStatusChangedEmail(context.Context, string, LeadStatusChanged) error {
	return nil
}

func (NoopSender) SendAccessRequestEmail(context.Context, string, AccessRequest) error {
	return nil
}

// NewSender returns an SMTP sender when email is enabled and a NoopSender otherwise.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

var (
	_ Sender = NoopSender{}
	_ Sender = (*SMTPSender)(nil)
)
