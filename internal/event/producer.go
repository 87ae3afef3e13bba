// Package event publishes sync engine outcomes to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/engine"
	pkgkafka "github.com/ddmuddatsir/marketin-website-sub000/pkg/kafka"
)

// SourceCartSync identifies events emitted by this client.
const SourceCartSync = "cartsync"

const publishTimeout = 5 * time.Second

// Topic returns the topic for an event type of one collection kind, for example
// storefront.cart.mutation.confirmed.
func Topic(kind domain.Kind, t engine.EventType) string {
	return pkgkafka.Topic(string(kind), string(t))
}

// Topics lists every topic this package writes to.
func Topics() []string {
	var topics []string
	for _, kind := range []domain.Kind{domain.KindCart, domain.KindWishlist} {
		for _, t := range []engine.EventType{
			engine.EventMutationConfirmed,
			engine.EventMutationRolledBack,
			engine.EventPurged,
		} {
			topics = append(topics, Topic(kind, t))
		}
	}
	return topics
}

// MutationData is the payload of mutation.confirmed and mutation.rolled_back events.
type MutationData struct {
	UserID     string `json:"user_id"`
	ProfileID  string `json:"profile_id,omitempty"`
	MutationID string `json:"mutation_id"`
	Op         string `json:"op"`
	ProductID  string `json:"product_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ItemCount  int    `json:"item_count"`
	Total      int64  `json:"total"`
}

// PurgedData is the payload of purged events.
type PurgedData struct {
	UserID    string `json:"user_id"`
	ProfileID string `json:"profile_id,omitempty"`
}

// Writer is the part of pkg/kafka.Producer used here.
type Writer interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer implements engine.Publisher on top of a Kafka writer.
type Producer struct {
	kafka     Writer
	profileID string
	logger    *slog.Logger
}

// NewProducer creates a producer. profileID is attached to every payload.
func NewProducer(kafka Writer, profileID string, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:     kafka,
		profileID: profileID,
		logger:    logger,
	}
}

// Publish implements engine.Publisher. Failures are logged and dropped.
func (p *Producer) Publish(ctx context.Context, e engine.Event) {
	if err := p.publish(ctx, e); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish sync event",
			slog.String("kind", string(e.Kind)),
			slog.String("event_type", string(e.Type)),
			slog.String("user_id", e.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Producer) publish(ctx context.Context, e engine.Event) error {
	var data any
	switch e.Type {
	case engine.EventMutationConfirmed, engine.EventMutationRolledBack:
		data = MutationData{
			UserID:     e.UserID,
			ProfileID:  p.profileID,
			MutationID: e.MutationID,
			Op:         string(e.Op),
			ProductID:  e.ProductID,
			Reason:     string(e.Reason),
			ItemCount:  e.ItemCount,
			Total:      e.Total,
		}
	case engine.EventPurged:
		data = PurgedData{UserID: e.UserID, ProfileID: p.profileID}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}

	eventType := string(e.Kind) + "." + string(e.Type)
	evt, err := pkgkafka.NewEventAt(eventType, e.UserID, string(e.Kind), SourceCartSync, data, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if e.MutationID != "" {
		evt.WithCorrelationID(e.MutationID)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.kafka.Publish(ctx, Topic(e.Kind, e.Type), evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published sync event",
		slog.String("event_type", eventType),
		slog.String("user_id", e.UserID),
	)
	return nil
}
