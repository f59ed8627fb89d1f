package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues reconciliation retries. Implements workflow.Retrier.
type Client struct {
	client   *asynq.Client
	maxRetry int
}

func NewClient(redisAddr, redisPassword string, maxRetry int) *Client {
	if maxRetry < 1 {
		maxRetry = 10
	}
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: redisPassword,
		}),
		maxRetry: maxRetry,
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleReconcile enqueues a retry for serial. The first attempt runs
// after a short delay; further backoff is asynq's exponential default.
func (c *Client) ScheduleReconcile(ctx context.Context, serial string) error {
	task, err := NewReconcileTask(serial)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, serial)
}

// ScheduleWhitelist enqueues a retry of the full whitelist pass for serial,
// so the entry markers get written once the instance converges.
func (c *Client) ScheduleWhitelist(ctx context.Context, operation, serial string) error {
	task, err := NewWhitelistTask(operation, serial)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, serial)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, serial string) error {
	_, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(c.maxRetry),
		asynq.ProcessIn(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueueing %s for %s: %w", task.Type(), serial, err)
	}
	return nil
}
