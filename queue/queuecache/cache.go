// Package queuecache persists the queue state to redis so that a restarting
// process picks up the waiting players instead of dropping them.
package queuecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pickup-matchmaker/events"
	"pickup-matchmaker/queue"
)

const (
	queueKey = "queue"
	queueTTL = 180 * time.Second
)

// Cache mirrors every queue slot/state change into redis. The snapshot
// expires on its own, so a long-dead process never resurrects a stale queue.
type Cache struct {
	rdb   *redis.Client
	queue *queue.Service

	unsubscribe []func()
}

func New(rdb *redis.Client, svc *queue.Service, bus *events.Bus) *Cache {
	c := &Cache{rdb: rdb, queue: svc}
	c.unsubscribe = append(c.unsubscribe,
		bus.QueueSlotsChange.Subscribe(func(events.QueueSlotsChange) {
			c.store()
		}),
		bus.QueueStateChange.Subscribe(func(events.QueueStateChange) {
			c.store()
		}),
	)
	return c
}

func (c *Cache) Close() {
	for _, cancel := range c.unsubscribe {
		cancel()
	}
}

// Restore loads a previously stored snapshot into the queue service. A
// missing key is not an error.
func (c *Cache) Restore(ctx context.Context) error {
	payload, err := c.rdb.Get(ctx, queueKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	var snap queue.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return err
	}
	c.queue.Restore(snap)
	log.Info().Int("slots", len(snap.Slots)).Str("state", string(snap.State)).Msg("queue restored from cache")
	return nil
}

func (c *Cache) store() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := json.Marshal(c.queue.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("queue cache: marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, queueKey, payload, queueTTL).Err(); err != nil {
		log.Error().Err(err).Msg("queue cache: write failed")
	}
}
