// Package ports defines the interfaces that the leads domain requires from
// external systems. These interfaces form the Anti-Corruption Layer (ACL),
// ensuring the leads domain only knows about the data it needs, formatted
// the way it wants.
package ports

import (
	"context"

	"github.com/google/uuid"
)

// TemplateLeadStatusChanged tells a lead's contact that their inquiry moved stage.
const TemplateLeadStatusChanged = "lead_status_changed"

// Notification is a request to tell someone something. Delivery happens
// elsewhere and never blocks the caller.
type Notification struct {
	Recipient   string
	TemplateKey string
	Data        map[string]string
}

// NotificationDispatcher accepts notification requests for asynchronous delivery.
// The implementation is provided by the composition root and wraps the
// notification context, so leads never imports it directly.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, tenantID uuid.UUID, n Notification) error
}
