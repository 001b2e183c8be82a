package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Publisher queues session events for the event worker to persist.
type Publisher struct {
	rdb   redis.Cmdable
	queue string
}

// NewPublisher creates a Publisher pushing onto the session events queue.
func NewPublisher(rdb redis.Cmdable) *Publisher {
	return &Publisher{rdb: rdb, queue: config.WorkerKey.PersistSessionEventsQueue}
}

// Publish appends event to the queue.
func (p *Publisher) Publish(ctx context.Context, event model.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("queue session event: %w", err)
	}
	return nil
}
