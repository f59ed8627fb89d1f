package events

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/metrics"
)

// Sink consumes normalized device events. The returned error is only used
// for logging here; retry and drop decisions belong to the sink.
type Sink interface {
	HandleDeviceEvent(ctx context.Context, ev *DeviceEvent) error
}

// Consumer subscribes to the driver's topics on Redis Pub/Sub and feeds
// normalized events to the sink. Messages on one topic are processed in
// arrival order; per-serial safety is the workflow engine's job.
type Consumer struct {
	rdb        *redis.Client
	normalizer *Normalizer
	sink       Sink
	log        *zap.SugaredLogger
}

func NewConsumer(rdb *redis.Client, sink Sink, log *zap.SugaredLogger) *Consumer {
	return &Consumer{
		rdb:        rdb,
		normalizer: NewNormalizer(),
		sink:       sink,
		log:        log,
	}
}

// Run blocks consuming bus messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	pubsub := c.rdb.Subscribe(ctx, Topics...)
	defer pubsub.Close()

	c.log.Infow("subscribed to event bus", "topics", Topics)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handle(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, topic string, payload []byte) {
	metrics.EventsReceived.WithLabelValues(topic).Inc()

	ev, err := c.normalizer.Normalize(topic, payload)
	if err != nil {
		metrics.EventsDropped.WithLabelValues(topic, "malformed").Inc()
		c.log.Errorw("dropping malformed bus message", "topic", topic, "error", err)
		return
	}

	if err := c.sink.HandleDeviceEvent(ctx, ev); err != nil {
		// The sink already classified and logged; this is the last resort.
		c.log.Debugw("event handling returned error", "topic", topic, "event_id", ev.ID, "error", err)
	}
}
