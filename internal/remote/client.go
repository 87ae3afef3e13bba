// Package remote is the HTTP client for the authoritative cart and wishlist service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/timestamp"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/httpclient"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/tracing"
)

const serviceName = "cart-service"

// TokenSource returns the bearer token of the signed-in user.
type TokenSource func(ctx context.Context) (string, error)

// AddRequest is the body of an item creation.
type AddRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
	Price     int64  `json:"price"`
	Name      string `json:"name,omitempty"`
	Image     string `json:"image,omitempty"`
}

type wireItem struct {
	ID        string         `json:"id"`
	ProductID string         `json:"product_id"`
	Quantity  int            `json:"quantity,omitempty"`
	Price     int64          `json:"price"`
	Name      string         `json:"name,omitempty"`
	Image     string         `json:"image,omitempty"`
	AddedAt   timestamp.Time `json:"added_at"`
}

func (w wireItem) toDomain() domain.LineItem {
	return domain.LineItem{
		ID:        w.ID,
		ProductID: w.ProductID,
		Quantity:  w.Quantity,
		Price:     w.Price,
		Name:      w.Name,
		Image:     w.Image,
		AddedAt:   w.AddedAt.Time,
	}
}

type listResponse struct {
	Items []wireItem `json:"items"`
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

// Client talks to the remote store. Every request carries the bearer token of the
// current identity and passes through a client-side rate limiter.
type Client struct {
	http    httpclient.Doer
	baseURL string
	token   TokenSource
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewClient creates a remote store client. A nil limiter disables rate limiting.
func NewClient(doer httpclient.Doer, baseURL string, token TokenSource, limiter *rate.Limiter, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		limiter: limiter,
		tracer:  tracing.Tracer("cartsync/remote"),
		logger:  logger,
	}
}

// List returns every item in the collection.
func (c *Client) List(ctx context.Context, kind domain.Kind) ([]domain.LineItem, error) {
	ctx, span := c.startSpan(ctx, "remote.List", kind)
	defer span.End()

	var out listResponse
	if err := c.do(ctx, http.MethodGet, c.collectionURL(kind), nil, &out); err != nil {
		recordError(span, err)
		return nil, err
	}

	items := make([]domain.LineItem, 0, len(out.Items))
	for _, w := range out.Items {
		items = append(items, w.toDomain())
	}
	span.SetAttributes(attribute.Int("cartsync.items", len(items)))
	return domain.Normalize(kind, items), nil
}

// Add creates an item and returns it as stored remotely.
func (c *Client) Add(ctx context.Context, kind domain.Kind, req AddRequest) (domain.LineItem, error) {
	ctx, span := c.startSpan(ctx, "remote.Add", kind)
	defer span.End()
	span.SetAttributes(attribute.String("cartsync.product_id", req.ProductID))

	if !kind.HasQuantity() {
		req.Quantity = 0
	}
	var out wireItem
	if err := c.do(ctx, http.MethodPost, c.collectionURL(kind)+"/items", req, &out); err != nil {
		recordError(span, err)
		return domain.LineItem{}, err
	}
	return out.toDomain(), nil
}

// Update sets the quantity of a cart item.
func (c *Client) Update(ctx context.Context, kind domain.Kind, itemID string, quantity int) error {
	ctx, span := c.startSpan(ctx, "remote.Update", kind)
	defer span.End()
	span.SetAttributes(attribute.String("cartsync.item_id", itemID), attribute.Int("cartsync.quantity", quantity))

	err := c.do(ctx, http.MethodPatch, c.itemURL(kind, itemID), updateRequest{Quantity: quantity}, nil)
	recordError(span, err)
	return err
}

// Remove deletes one item.
func (c *Client) Remove(ctx context.Context, kind domain.Kind, itemID string) error {
	ctx, span := c.startSpan(ctx, "remote.Remove", kind)
	defer span.End()
	span.SetAttributes(attribute.String("cartsync.item_id", itemID))

	err := c.do(ctx, http.MethodDelete, c.itemURL(kind, itemID), nil, nil)
	recordError(span, err)
	return err
}

// Clear deletes every item in the collection.
func (c *Client) Clear(ctx context.Context, kind domain.Kind) error {
	ctx, span := c.startSpan(ctx, "remote.Clear", kind)
	defer span.End()

	err := c.do(ctx, http.MethodDelete, c.collectionURL(kind), nil, nil)
	recordError(span, err)
	return err
}

func (c *Client) collectionURL(kind domain.Kind) string {
	return c.baseURL + "/api/v1/" + string(kind)
}

func (c *Client) itemURL(kind domain.Kind, itemID string) string {
	return c.collectionURL(kind) + "/items/" + url.PathEscape(itemID)
}

func (c *Client) startSpan(ctx context.Context, name string, kind domain.Kind) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cartsync.kind", string(kind))),
	)
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.TransientRemote("remote store rate limit", err)
		}
	}

	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", method, err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := httpclient.NewRequest(ctx, method, target, contentType, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnContext(ctx, "remote store unreachable",
			slog.String("method", method),
			slog.String("url", target),
			slog.String("error", err.Error()),
		)
		return classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(httpclient.ParseResponseError(resp, serviceName))
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.TransientRemote("malformed remote response", fmt.Errorf("decode %s response: %w", method, err))
	}
	return nil
}

// classify maps transport and HTTP failures onto the engine's failure taxonomy:
// rejected credentials become AuthenticationExpired, anything retryable becomes
// TransientRemote. Other errors pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrTransientRemote):
		return err
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrForbidden):
		return apperrors.AuthenticationExpired("session expired, sign in again", err)
	case httpclient.IsTransient(err):
		return apperrors.TransientRemote("remote store unavailable", err)
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrConflict):
		return err
	default:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.TransientRemote("remote store request failed", err)
	}
}
