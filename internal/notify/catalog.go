package notify

import (
	"encoding/json"
	"log/slog"

	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/stores/kafka"
	"lifecycle-service/pkg/logkey"
)

// CatalogConsumer translates catalog-service Kafka records into bus events
// so wishlist price-drop and restock notifications flow through the same
// dispatcher as everything else.
type CatalogConsumer struct {
	publisher interface{ Publish(ev bus.Event) }
}

func NewCatalogConsumer(publisher interface{ Publish(ev bus.Event) }) *CatalogConsumer {
	return &CatalogConsumer{publisher: publisher}
}

func (c *CatalogConsumer) Handle(topic string, value []byte) {
	switch topic {
	case kafka.TopicPriceDropped:
		var ev kafka.PriceDroppedEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			slog.Error("failed to unmarshal price drop event", slog.String(logkey.ERROR, err.Error()))
			return
		}
		c.publisher.Publish(bus.PriceDropEvent{
			ProductID:   ev.ProductId,
			ProductName: ev.ProductName,
			OldPrice:    ev.OldPrice,
			NewPrice:    ev.NewPrice,
			Recipients:  toRecipients(ev.Recipients),
			CreatedAt:   ev.CreatedAt,
		})
	case kafka.TopicProductRestock:
		var ev kafka.ProductRestockedEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			slog.Error("failed to unmarshal restock event", slog.String(logkey.ERROR, err.Error()))
			return
		}
		c.publisher.Publish(bus.RestockEvent{
			ProductID:   ev.ProductId,
			ProductName: ev.ProductName,
			Stock:       ev.Stock,
			Recipients:  toRecipients(ev.Recipients),
			CreatedAt:   ev.CreatedAt,
		})
	default:
		slog.Info("ignoring record from unexpected topic", slog.String("Topic", topic))
	}
}

func toRecipients(in []kafka.Recipient) []bus.Recipient {
	out := make([]bus.Recipient, 0, len(in))
	for _, r := range in {
		out = append(out, bus.Recipient{UserID: r.UserId, Email: r.Email, Name: r.Name})
	}
	return out
}
