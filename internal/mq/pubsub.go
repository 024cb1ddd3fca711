package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/fintrack/apiserver/config"
	"google.golang.org/api/option"
)

const pubsubAckDeadline = 30 * time.Second

// PubSubClient publishes events to Google Cloud Pub/Sub topics, one topic
// per channel. Topics and subscriptions are created on first use with
// message ordering enabled, so events sharing an ordering key arrive in
// the order they were published.
type PubSubClient struct {
	client *pubsub.Client
	suffix string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	return &PubSubClient{
		client: client,
		suffix: cfg.SubscriptionSuffix,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends an event to the channel's topic and waits for the server
// to assign it an id.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}

	msg := toPubSubMessage(data, attrs)
	id, err := topic.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// A failed ordered publish pauses its key until resumed.
		topic.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

// Subscribe receives the channel's events on the subscription named
// channel+suffix until ctx is done. A handler error nacks the message.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}

	sub := p.client.Subscription(channel + p.suffix)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		sub, err = p.client.CreateSubscription(ctx, channel+p.suffix, pubsub.SubscriptionConfig{
			Topic:                 topic,
			AckDeadline:           pubsubAckDeadline,
			EnableMessageOrdering: true,
		})
		if err != nil {
			return err
		}
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, fromPubSubMessage(msg)); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes pending publishes and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, channel string) (*pubsub.Topic, error) {
	if strings.TrimSpace(channel) == "" {
		return nil, errors.New("pubsub channel is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if topic, ok := p.topics[channel]; ok {
		return topic, nil
	}

	topic := p.client.Topic(channel)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, channel); err != nil {
			return nil, err
		}
	}
	topic.EnableMessageOrdering = true
	p.topics[channel] = topic
	return topic, nil
}

// toPubSubMessage lifts the ordering key out of the attributes; Pub/Sub
// carries it as a message field.
func toPubSubMessage(data []byte, attrs map[string]string) *pubsub.Message {
	msg := &pubsub.Message{Data: data}
	if len(attrs) == 0 {
		return msg
	}
	msg.Attributes = make(map[string]string, len(attrs))
	for key, value := range attrs {
		if key == AttrOrderingKey {
			msg.OrderingKey = value
			continue
		}
		msg.Attributes[key] = value
	}
	return msg
}

func fromPubSubMessage(msg *pubsub.Message) Message {
	attrs := make(map[string]string, len(msg.Attributes)+2)
	for key, value := range msg.Attributes {
		attrs[key] = value
	}
	if msg.OrderingKey != "" {
		attrs[AttrOrderingKey] = msg.OrderingKey
	}
	if _, ok := attrs[AttrPublishedAt]; !ok && !msg.PublishTime.IsZero() {
		attrs[AttrPublishedAt] = msg.PublishTime.UTC().Format(time.RFC3339Nano)
	}
	return Message{
		ID:         msg.ID,
		Data:       msg.Data,
		Attributes: attrs,
	}
}
