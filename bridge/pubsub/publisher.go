// Package pubsub forwards game lifecycle events to a Cloud Pub/Sub topic so
// external consumers (bots, site notifications) can react without being wired
// into the process.
package pubsub

import (
	"context"
	"encoding/json"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const envelopeVersion = "1.0"

// GameEvent is the wire envelope for one game lifecycle event.
type GameEvent struct {
	EnvelopeVersion string    `json:"envelopeVersion"`
	Type            string    `json:"type"`
	GameID          string    `json:"gameId"`
	AdminID         string    `json:"adminId,omitempty"`
	EmittedAt       time.Time `json:"emittedAt"`
}

type Publisher struct {
	projectID string
	topicID   string
	credsFile string
	client    *gpubsub.Client
	topic     *gpubsub.Topic
}

func NewPublisher(projectID, topicID, credsFile string) *Publisher {
	return &Publisher{projectID: projectID, topicID: topicID, credsFile: credsFile}
}

func (p *Publisher) PublishGameEvent(ctx context.Context, event *GameEvent) error {
	if p.client == nil {
		var (
			client *gpubsub.Client
			err    error
		)
		if p.credsFile != "" {
			log.Debug().Str("projectID", p.projectID).Str("topic", p.topicID).Str("credsFile", p.credsFile).Msg("initializing pubsub publisher with explicit credentials")
			client, err = gpubsub.NewClient(ctx, p.projectID, option.WithCredentialsFile(p.credsFile))
		} else {
			log.Debug().Str("projectID", p.projectID).Str("topic", p.topicID).Msg("initializing pubsub publisher with default credentials")
			client, err = gpubsub.NewClient(ctx, p.projectID)
		}
		if err != nil {
			log.Error().Err(err).Str("projectID", p.projectID).Str("topic", p.topicID).Msg("failed to create pubsub client for publisher")
			return err
		}
		p.client = client
		p.topic = client.Topic(p.topicID)
		log.Info().Str("topic", p.topicID).Msg("pubsub publisher initialized")
	}
	b, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Interface("event", event).Msg("failed to marshal game event")
		return err
	}
	// Publish and wait for server ack
	r := p.topic.Publish(ctx, &gpubsub.Message{Data: b})
	id, err := r.Get(ctx)
	if err != nil {
		log.Error().Err(err).Str("gameId", event.GameID).Msg("failed to publish game event")
		return err
	}
	log.Debug().Str("messageID", id).Str("gameId", event.GameID).Str("type", event.Type).Msg("published game event")
	return nil
}

func (p *Publisher) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}
}
