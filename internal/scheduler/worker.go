package scheduler

import (
	"context"
	"fmt"

	"broker_crm_backend/internal/events"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	bus    events.Bus
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, log *logger.Logger) (*Worker, error) {
	opt, err := clientOpt(cfg)
	if err != nil {
		return nil, err
	}
	return newWorkerWithOpt(opt, cfg.GetAsynqQueueName(), cfg.GetAsynqConcurrency(), bus, log), nil
}

func newWorkerWithOpt(opt asynq.RedisConnOpt, queue string, concurrency int, bus events.Bus, log *logger.Logger) *Worker {
	if queue == "" {
		queue = defaultQueue
	}
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		bus:    bus,
		log:    log,
	}

	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return fmt.Errorf("%w: outbox id: %v", asynq.SkipRetry, err)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%w: tenant id: %v", asynq.SkipRetry, err)
	}

	// Delivery failures are retried through the outbox, not by asynq.
	if err := w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
		TenantID:  tenantID,
	}); err != nil {
		w.log.Warn("notification outbox delivery failed", "outboxId", outboxID.String(), "error", err)
	}
	return nil
}

// Run starts the queue server and blocks until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return err
	}
	w.log.Info("scheduler worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
