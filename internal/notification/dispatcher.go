package notification

import (
	"context"
	"fmt"
	"strings"

	"broker_crm_backend/internal/notification/outbox"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Template keys understood by the delivery side.
const (
	TemplateLeadStatusChanged = "lead_status_changed"
	TemplateAccessRequest     = "access_request"
)

// Request asks for a notification to be sent. Data is template specific.
type Request struct {
	Recipient   string
	TemplateKey string
	Data        map[string]string
}

// OutboxWriter stores a request for later delivery.
type OutboxWriter interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// Dispatcher accepts notification requests. It only records them; it never
// waits for delivery.
type Dispatcher struct {
	outbox OutboxWriter
	log    *logger.Logger
}

func NewDispatcher(outbox OutboxWriter, log *logger.Logger) *Dispatcher {
	return &Dispatcher{outbox: outbox, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, req Request) error {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return fmt.Errorf("notification %s: recipient is required", req.TemplateKey)
	}
	if !knownTemplate(req.TemplateKey) {
		return fmt.Errorf("notification %s: unknown template", req.TemplateKey)
	}

	data := req.Data
	if data == nil {
		data = map[string]string{}
	}

	id, err := d.outbox.Insert(ctx, outbox.InsertParams{
		TenantID:  tenantID,
		Kind:      outbox.KindEmail,
		Template:  req.TemplateKey,
		Recipient: recipient,
		Payload:   data,
	})
	if err != nil {
		return fmt.Errorf("notification %s: queue: %w", req.TemplateKey, err)
	}

	d.log.WithContext(ctx).Debug("notification queued", "outboxId", id.String(), "template", req.TemplateKey)
	return nil
}

func knownTemplate(key string) bool {
	switch key {
	case TemplateLeadStatusChanged, TemplateAccessRequest:
		return true
	default:
		return false
	}
}
