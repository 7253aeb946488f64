package delivery

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

// pubsubSender delivers payloads to subscriber-configured Pub/Sub topics.
type pubsubSender struct {
	client *pubsub.Client
	log    Logger
}

func newPubSubSender(ctx context.Context, projectID string, log Logger) (*pubsubSender, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &pubsubSender{client: client, log: ensureLogger(log)}, nil
}

func (p *pubsubSender) Type() string { return domain.TransportPubSub }

func (p *pubsubSender) Send(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	if sub.Topic == "" {
		return fmt.Errorf("subscriber %q has no topic", sub.Name)
	}

	topic := p.client.Topic(sub.Topic)
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"subscriber": sub.Name},
	})
	if _, err := result.Get(ctx); err != nil {
		p.log.ErrorObj("pubsub delivery failed", "delivery_pubsub_error", map[string]any{
			"subscriber": sub.Name,
			"error":      err.Error(),
		})
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	p.log.DebugObj("pubsub delivered payload", "delivery_pubsub", map[string]any{
		"subscriber": sub.Name,
	})
	return nil
}
