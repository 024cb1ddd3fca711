package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/fintrack/apiserver/internal/mq"
	"github.com/google/uuid"
)

// EventPublisher delivers domain events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// publishEvent sends payload on channel. Events with the same orderingKey
// are delivered in publish order by backends that support it. The write
// an event describes has already committed, so failures are logged and
// swallowed.
func publishEvent(ctx context.Context, publisher EventPublisher, channel, orderingKey string, payload any) {
	if publisher == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("event %s: marshal failed: %v", channel, err)
		return
	}
	attrs := map[string]string{
		mq.AttrEventID:     uuid.NewString(),
		mq.AttrEventType:   channel,
		mq.AttrContentType: "application/json",
		mq.AttrPublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if orderingKey != "" {
		attrs[mq.AttrOrderingKey] = orderingKey
	}
	if _, err := publisher.Publish(ctx, channel, data, attrs); err != nil {
		log.Printf("event %s: publish failed: %v", channel, err)
	}
}
