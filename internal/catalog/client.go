// Package catalog resolves product snapshots from the product catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/httpclient"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/tracing"
)

// Product is the catalog representation of a product. Price is in major currency units.
type Product struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       float64  `json:"price"`
	Thumbnail   string   `json:"thumbnail"`
	Images      []string `json:"images"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
}

// Snapshot returns the denormalized fields copied into a line item.
func (p Product) Snapshot() domain.Snapshot {
	image := p.Thumbnail
	if image == "" && len(p.Images) > 0 {
		image = p.Images[0]
	}
	return domain.Snapshot{
		Name:  p.Title,
		Price: int64(math.Round(p.Price * 100)),
		Image: image,
	}
}

type entry struct {
	product Product
	expires time.Time
}

// Client is a read-through client for GET /api/v1/products/{id}. Successful lookups
// are cached for ttl; failures are never cached.
type Client struct {
	http    httpclient.Doer
	baseURL string
	ttl     time.Duration
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewClient creates a catalog client. ttl <= 0 disables caching.
func NewClient(doer httpclient.Doer, baseURL string, ttl time.Duration, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		tracer:  tracing.Tracer("cartsync/catalog"),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Product returns the product with the given id.
func (c *Client) Product(ctx context.Context, id string) (Product, error) {
	if p, ok := c.cached(id); ok {
		return p, nil
	}

	ctx, span := c.tracer.Start(ctx, "catalog.Product",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cartsync.product_id", id)),
	)
	defer span.End()

	p, err := c.fetch(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Product{}, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[id] = entry{product: p, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return p, nil
}

// Lookup resolves the snapshot for productID. Failures are wrapped as Enrichment errors.
func (c *Client) Lookup(ctx context.Context, productID string) (domain.Snapshot, error) {
	p, err := c.Product(ctx, productID)
	if err != nil {
		c.logger.WarnContext(ctx, "product lookup failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return domain.Snapshot{}, apperrors.Enrichment(productID, err)
	}
	return p.Snapshot(), nil
}

// Purge drops every cached product.
func (c *Client) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

func (c *Client) cached(id string) (Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Product{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, id)
		return Product{}, false
	}
	return e.product, true
}

func (c *Client) fetch(ctx context.Context, id string) (Product, error) {
	req, err := httpclient.NewRequest(ctx, http.MethodGet, c.baseURL+"/api/v1/products/"+url.PathEscape(id), "", nil)
	if err != nil {
		return Product{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return Product{}, fmt.Errorf("fetch product %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Product{}, httpclient.ParseResponseError(resp, "product-catalog")
	}
	defer resp.Body.Close()

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}
