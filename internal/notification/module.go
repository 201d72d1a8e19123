// Package notification delivers notification requests recorded in the outbox.
// Requests come in through the Dispatcher; the worker picks them up and this
// module renders and sends them when the scheduler says they are due.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"broker_crm_backend/internal/email"
	"broker_crm_backend/internal/events"
	"broker_crm_backend/internal/notification/outbox"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = time.Hour
	invalidOutboxPayloadPrefix = "invalid payload: "
)

// OutboxStore is the outbox access the delivery side needs.
type OutboxStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error
}

// Module handles notification delivery events.
type Module struct {
	outbox OutboxStore
	sender email.Sender
	cfg    config.NotificationConfig
	log    *logger.Logger
	now    func() time.Time
}

// New creates the notification module.
func New(outbox OutboxStore, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	return &Module{outbox: outbox, sender: sender, cfg: cfg, log: log, now: time.Now}
}

// RegisterHandlers subscribes the module to the events it handles.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)
	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	m.log.Info("processing outbox due event", "outboxId", e.OutboxID, "tenantId", e.TenantID)
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil || !process {
		if err != nil {
			m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		}
		return err
	}

	if rec.Kind != outbox.KindEmail {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}

	var processErr error
	switch rec.Template {
	case TemplateLeadStatusChanged:
		processErr = m.sender.SendLeadStatusChangedEmail(ctx, rec.Recipient, leadStatusChangedData(payload))
	case TemplateAccessRequest:
		processErr = m.sender.SendAccessRequestEmail(ctx, rec.Recipient, m.accessRequestData(payload))
	default:
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if processErr != nil {
		m.handleOutboxDeliveryError(ctx, rec, processErr)
		return processErr
	}

	if err := m.outbox.MarkSucceeded(ctx, rec.ID); err != nil {
		m.log.DatabaseError("outbox.mark_succeeded", err)
	}
	m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return nil
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (outbox.Record, bool, error) {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if errors.Is(err, outbox.ErrNotFound) {
		m.log.Warn("outbox record vanished; skipping", "outboxId", outboxID.String())
		return outbox.Record{}, false, nil
	}
	if err != nil {
		return outbox.Record{}, false, err
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusFailed {
		m.log.Debug("outbox record already finished; skipping", "outboxId", rec.ID.String(), "status", rec.Status)
		return rec, false, nil
	}
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return outbox.Record{}, false, err
	}
	m.log.Debug("outbox record marked processing", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return rec, true, nil
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec outbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"template", rec.Template,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := m.now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.outbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.outbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"template", rec.Template,
		"attempt", attempt,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec outbox.Record) {
	msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
	_ = m.outbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}

func leadStatusChangedData(p map[string]string) email.LeadStatusChanged {
	return email.LeadStatusChanged{
		LeadName:      p["leadName"],
		OldStatus:     p["oldStatus"],
		NewStatus:     p["newStatus"],
		PropertyTitle: p["propertyTitle"],
		BrokerName:    p["brokerName"],
	}
}

func (m *Module) accessRequestData(p map[string]string) email.AccessRequest {
	return email.AccessRequest{
		RequesterName:  p["requesterName"],
		RequesterEmail: p["requesterEmail"],
		Module:         p["module"],
		Action:         p["action"],
		Reason:         p["reason"],
		ReviewURL:      m.buildReviewLink(p["requesterId"]),
	}
}

func (m *Module) buildReviewLink(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return ""
	}
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/users/%s/permissions", base, userID)
}
