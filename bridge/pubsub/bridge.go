package pubsub

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"pickup-matchmaker/events"
)

const publishTimeout = 10 * time.Second

// Bridge relays game lifecycle events from the in-process bus to the
// configured Pub/Sub topic. A publish failure is logged and dropped; the
// bridge is best-effort by design of its consumers.
type Bridge struct {
	publisher *Publisher

	unsubscribe []func()
}

func NewBridge(publisher *Publisher, bus *events.Bus) *Bridge {
	b := &Bridge{publisher: publisher}
	b.unsubscribe = append(b.unsubscribe,
		bus.GameCreated.Subscribe(func(e events.GameCreated) {
			b.forward(&GameEvent{Type: "game-created", GameID: e.GameID})
		}),
		bus.GameChanges.Subscribe(func(e events.GameChanges) {
			b.forward(&GameEvent{Type: "game-changes", GameID: e.GameID, AdminID: e.AdminID})
		}),
	)
	return b
}

func (b *Bridge) Close() {
	for _, cancel := range b.unsubscribe {
		cancel()
	}
	b.publisher.Close()
}

func (b *Bridge) forward(event *GameEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	event.EnvelopeVersion = envelopeVersion
	event.EmittedAt = time.Now()
	if err := b.publisher.PublishGameEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("gameId", event.GameID).Str("type", event.Type).Msg("failed to forward game event")
	}
}
