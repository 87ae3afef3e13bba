package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/timestamp"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
)

const envelopeVersion = 1

// Key returns the backend key of a collection. Keys are scoped per browser profile,
// not per user.
func Key(profileID string, kind domain.Kind) string {
	return profileID + ":" + string(kind)
}

type envelope struct {
	Version int          `json:"version"`
	Owner   string       `json:"owner,omitempty"`
	Items   []cachedItem `json:"items"`
}

type cachedItem struct {
	ID         string         `json:"id"`
	ProductID  string         `json:"productId"`
	Quantity   int            `json:"quantity,omitempty"`
	Price      int64          `json:"price"`
	Name       string         `json:"name,omitempty"`
	Image      string         `json:"image,omitempty"`
	AddedAt    timestamp.Time `json:"addedAt"`
	Unresolved bool           `json:"unresolved,omitempty"`
}

func fromDomain(item domain.LineItem) cachedItem {
	return cachedItem{
		ID:         item.ID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		Price:      item.Price,
		Name:       item.Name,
		Image:      item.Image,
		AddedAt:    timestamp.From(item.AddedAt),
		Unresolved: item.Unresolved,
	}
}

func (c cachedItem) toDomain() domain.LineItem {
	return domain.LineItem{
		ID:         c.ID,
		ProductID:  c.ProductID,
		Quantity:   c.Quantity,
		Price:      c.Price,
		Name:       c.Name,
		Image:      c.Image,
		AddedAt:    c.AddedAt.Time,
		Unresolved: c.Unresolved,
	}
}

// Store persists one collection of one browser profile.
type Store struct {
	backend Backend
	key     string
	kind    domain.Kind
	logger  *slog.Logger
}

// NewStore creates a store for the given profile and collection kind.
func NewStore(backend Backend, profileID string, kind domain.Kind, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		key:     Key(profileID, kind),
		kind:    kind,
		logger:  logger,
	}
}

// Key returns the backend key this store writes to.
func (s *Store) Key() string {
	return s.key
}

// Load returns the cached items regardless of owner. Any failure yields an empty slice.
func (s *Store) Load(ctx context.Context) []domain.LineItem {
	env, ok := s.read(ctx)
	if !ok {
		return []domain.LineItem{}
	}
	return s.toItems(env)
}

// LoadFor returns the cached items if they are unowned or owned by userID. Items cached
// for a different user are purged and never returned.
func (s *Store) LoadFor(ctx context.Context, userID string) []domain.LineItem {
	env, ok := s.read(ctx)
	if !ok {
		return []domain.LineItem{}
	}
	if env.Owner != "" && env.Owner != userID {
		ownerMismatches.WithLabelValues(string(s.kind)).Inc()
		logger.WithContext(ctx, s.logger).WarnContext(ctx, "discarding cached collection owned by another user",
			slog.String("kind", string(s.kind)),
			slog.String("key", s.key),
		)
		s.Purge(ctx)
		return []domain.LineItem{}
	}
	return s.toItems(env)
}

// Save writes items tagged with owner (empty for an unowned collection). Failures are
// logged and dropped.
func (s *Store) Save(ctx context.Context, owner string, items []domain.LineItem) {
	env := envelope{
		Version: envelopeVersion,
		Owner:   owner,
		Items:   make([]cachedItem, len(items)),
	}
	for i, item := range items {
		env.Items[i] = fromDomain(item)
	}

	data, err := json.Marshal(env)
	if err != nil {
		s.fail(ctx, "encode", err)
		return
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		s.fail(ctx, "write", err)
	}
}

// Purge deletes the cached collection. Failures are logged and dropped.
func (s *Store) Purge(ctx context.Context) {
	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.fail(ctx, "purge", err)
	}
}

func (s *Store) read(ctx context.Context) (envelope, bool) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.fail(ctx, "read", err)
		}
		return envelope{}, false
	}

	env, err := decode(data)
	if err != nil {
		s.fail(ctx, "decode", err)
		return envelope{}, false
	}
	return env, true
}

func (s *Store) toItems(env envelope) []domain.LineItem {
	items := make([]domain.LineItem, len(env.Items))
	for i, c := range env.Items {
		items[i] = c.toDomain()
	}
	return domain.Normalize(s.kind, items)
}

func (s *Store) fail(ctx context.Context, op string, err error) {
	storeFailures.WithLabelValues(string(s.kind), op).Inc()
	logger.WithContext(ctx, s.logger).WarnContext(ctx, "local cache failure",
		slog.String("kind", string(s.kind)),
		slog.String("key", s.key),
		slog.String("op", op),
		slog.String("error", apperrors.Storage(op, err).Error()),
	)
}

// decode accepts the versioned envelope and the legacy bare item array.
func decode(data []byte) (envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return envelope{}, fmt.Errorf("empty cache value")
	}

	if trimmed[0] == '[' {
		var items []cachedItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return envelope{}, fmt.Errorf("unmarshal legacy items: %w", err)
		}
		return envelope{Version: 0, Items: items}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return envelope{}, fmt.Errorf("unmarshal cache envelope: %w", err)
	}
	if env.Version > envelopeVersion {
		return envelope{}, fmt.Errorf("unsupported cache version %d", env.Version)
	}
	return env, nil
}
