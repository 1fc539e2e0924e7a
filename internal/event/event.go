// Package event delivers committed ledger events to a Redis queue
// consumed by downstream settlement and notification workers.
package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/agave/factoring-ledger/internal/ledger"
)

const DefaultQueue = "ledger_events"

// Publisher pushes ledger events onto a Redis list. The ledger calls it
// after commit and treats failures as non-fatal, so the publisher never
// retries on its own.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}

	return &Publisher{rdb: rdb, queue: queue}
}

func (p *Publisher) Publish(ctx context.Context, ev ledger.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.Kind, err)
	}

	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("queueing event %s: %w", ev.Kind, err)
	}

	return nil
}
