package engine

import (
	"context"
	"time"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
)

// EventType names an engine outcome worth publishing.
type EventType string

const (
	EventMutationConfirmed  EventType = "mutation.confirmed"
	EventMutationRolledBack EventType = "mutation.rolled_back"
	EventPurged             EventType = "purged"
)

// Event describes a settled mutation or a purge.
type Event struct {
	Type       EventType
	Kind       domain.Kind
	UserID     string
	MutationID string
	Op         Op
	ProductID  string
	Reason     FailureReason
	ItemCount  int
	Total      int64
	OccurredAt time.Time
}

// Publisher receives engine events. Implementations handle their own failures;
// publishing never affects engine state.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
