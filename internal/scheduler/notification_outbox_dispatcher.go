package scheduler

import (
	"context"
	"time"

	"broker_crm_backend/internal/notification/outbox"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultOutboxPollInterval = 2 * time.Second
	outboxClaimBatch          = 50
)

// OutboxClaimer is the outbox access the dispatcher needs.
type OutboxClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// NotificationOutboxDispatcher moves pending outbox rows onto the task queue.
type NotificationOutboxDispatcher struct {
	enqueuer NotificationEnqueuer
	repo     OutboxClaimer
	interval time.Duration
	log      *logger.Logger
}

func NewNotificationOutboxDispatcher(enqueuer NotificationEnqueuer, repo OutboxClaimer, interval time.Duration, log *logger.Logger) *NotificationOutboxDispatcher {
	if interval <= 0 {
		interval = defaultOutboxPollInterval
	}
	return &NotificationOutboxDispatcher{
		enqueuer: enqueuer,
		repo:     repo,
		interval: interval,
		log:      log,
	}
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.enqueuer == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.dispatchOnce(ctx)
	}
}

// dispatchOnce claims one batch and enqueues it. Records that cannot be
// enqueued go back to pending with the error.
func (d *NotificationOutboxDispatcher) dispatchOnce(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		err := d.enqueuer.EnqueueNotificationOutboxDue(ctx, NotificationOutboxDuePayload{
			OutboxID: rec.ID.String(),
			TenantID: rec.TenantID.String(),
		}, rec.RunAt)
		if err != nil {
			msg := err.Error()
			if markErr := d.repo.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.DatabaseError("outbox.mark_pending", markErr)
			}
			d.log.Warn("outbox enqueue failed", "outboxId", rec.ID.String(), "error", err)
			continue
		}
		enqueued++
	}
	return enqueued
}
