package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"broker_crm_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultQueue = "default"

type Client struct {
	client *asynq.Client
	queue  string
}

// NotificationEnqueuer hands due outbox records to the task queue.
type NotificationEnqueuer interface {
	EnqueueNotificationOutboxDue(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := clientOpt(cfg)
	if err != nil {
		return nil, err
	}
	return newClientWithOpt(opt, cfg.GetAsynqQueueName()), nil
}

func newClientWithOpt(opt asynq.RedisConnOpt, queue string) *Client {
	if queue == "" {
		queue = defaultQueue
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueNotificationOutboxDue(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewNotificationOutboxDueTask(payload)
	if err != nil {
		return err
	}

	// The outbox id doubles as the task id so a record is never queued twice.
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(runAt),
		asynq.Queue(c.queue),
		asynq.TaskID(payload.OutboxID+":"+runAt.UTC().Format(time.RFC3339Nano)),
	)
	return err
}

func clientOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}
	return redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

var _ NotificationEnqueuer = (*Client)(nil)
