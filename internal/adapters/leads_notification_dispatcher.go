// Package adapters contains adapters that bridge different bounded contexts.
// These adapters implement interfaces defined by consuming domains while
// wrapping services from providing domains.
package adapters

import (
	"context"

	"broker_crm_backend/internal/leads/ports"
	"broker_crm_backend/internal/notification"

	"github.com/google/uuid"
)

// NotificationRequester is the notification entry point the adapters need.
type NotificationRequester interface {
	Dispatch(ctx context.Context, tenantID uuid.UUID, req notification.Request) error
}

// LeadNotificationDispatcher adapts the notification outbox to the leads
// domain's NotificationDispatcher port.
type LeadNotificationDispatcher struct {
	notifications NotificationRequester
}

func NewLeadNotificationDispatcher(notifications NotificationRequester) *LeadNotificationDispatcher {
	return &LeadNotificationDispatcher{notifications: notifications}
}

func (d *LeadNotificationDispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, n ports.Notification) error {
	return d.notifications.Dispatch(ctx, tenantID, notification.Request{
		Recipient:   n.Recipient,
		TemplateKey: n.TemplateKey,
		Data:        n.Data,
	})
}

var _ ports.NotificationDispatcher = (*LeadNotificationDispatcher)(nil)
