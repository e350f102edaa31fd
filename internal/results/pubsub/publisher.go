// Package pubsub announces capture results on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"google.golang.org/api/option"
)

// KindAttribute names the message attribute carrying the message kind.
const KindAttribute = "type"

// Publisher sends one JSON payload tagged with kind.
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) (string, error)
	Close() error
}

// Config selects the topic results are published to.
type Config struct {
	ProjectID string
	Topic     string
}

// TopicPublisher wraps a Pub/Sub topic.
type TopicPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// Open connects to Pub/Sub and checks that the topic exists.
func Open(ctx context.Context, cfg Config, opts ...option.ClientOption) (*TopicPublisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("results.pubsub.project_id is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("results.pubsub.topic is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %s: %w", cfg.Topic, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("topic %s does not exist", cfg.Topic)
	}
	return &TopicPublisher{client: client, topic: topic}, nil
}

// Publish marshals the payload to JSON and waits for the server ID.
func (p *TopicPublisher) Publish(ctx context.Context, kind string, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{KindAttribute: kind}}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client.
func (p *TopicPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
