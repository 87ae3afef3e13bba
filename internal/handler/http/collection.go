package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/engine"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/httputil"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/validator"
)

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item. An omitted quantity
// adds one unit.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Quantity  *int   `json:"quantity,omitempty" validate:"omitempty,gte=1,lte=999"`
	Price     int64  `json:"price" validate:"gte=0"`
	Name      string `json:"name" validate:"max=512"`
	Image     string `json:"image" validate:"max=2048"`
}

// UpdateQuantityRequest is the JSON request body for setting an item's quantity.
// Zero removes the item.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// --- Handlers ---

// GetCollection handles GET /api/v1/{kind}
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	c := collectionFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newStateResponse(c.Snapshot())})
}

// AddItem handles POST /api/v1/{kind}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c := collectionFromContext(r.Context())
	m, err := c.AddItem(r.Context(), engine.AddInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Name:      req.Name,
		Image:     req.Image,
	})
	h.respond(w, r, c, m, err)
}

// RemoveItem handles DELETE /api/v1/{kind}/items/{productId}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c := collectionFromContext(r.Context())
	m, err := c.RemoveItem(r.Context(), chi.URLParam(r, "productId"))
	h.respond(w, r, c, m, err)
}

// UpdateQuantity handles PUT /api/v1/{kind}/items/{productId}
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c := collectionFromContext(r.Context())
	m, err := c.SetQuantity(r.Context(), chi.URLParam(r, "productId"), *req.Quantity)
	h.respond(w, r, c, m, err)
}

// IncreaseQuantity handles POST /api/v1/{kind}/items/{productId}/increase
func (h *Handler) IncreaseQuantity(w http.ResponseWriter, r *http.Request) {
	c := collectionFromContext(r.Context())
	m, err := c.IncreaseQuantity(r.Context(), chi.URLParam(r, "productId"))
	h.respond(w, r, c, m, err)
}

// DecreaseQuantity handles POST /api/v1/{kind}/items/{productId}/decrease
func (h *Handler) DecreaseQuantity(w http.ResponseWriter, r *http.Request) {
	c := collectionFromContext(r.Context())
	m, err := c.DecreaseQuantity(r.Context(), chi.URLParam(r, "productId"))
	h.respond(w, r, c, m, err)
}

// ClearCollection handles DELETE /api/v1/{kind}
func (h *Handler) ClearCollection(w http.ResponseWriter, r *http.Request) {
	c := collectionFromContext(r.Context())
	m, err := c.Clear(r.Context())
	h.respond(w, r, c, m, err)
}

// respond writes the optimistic state of an accepted mutation with 202, or 200
// once it has settled. With ?wait=true it blocks until the remote store confirms
// or the mutation rolls back; a rollback is reported with its reason alongside
// the restored state.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, c Collection, m *engine.Mutation, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if waitRequested(r) {
		ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
		werr := m.Wait(ctx)
		cancel()

		switch {
		case werr == nil:
		case errors.Is(werr, context.DeadlineExceeded), errors.Is(werr, context.Canceled):
			// Still pending; report the optimistic state.
		default:
			status, body := h.errorBody(r, werr)
			httputil.WriteJSON(w, status, httputil.Response{Data: newMutationResult(c, m), Error: body})
			return
		}
	}

	status := http.StatusAccepted
	if m.State() == engine.Confirmed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: newMutationResult(c, m)})
}

func newMutationResult(c Collection, m *engine.Mutation) mutationResult {
	return mutationResult{
		Mutation: MutationResponse{
			ID:        m.ID,
			Op:        m.Op,
			ProductID: m.ProductID,
			State:     m.State().String(),
		},
		State: newStateResponse(c.Snapshot()),
	}
}

func waitRequested(r *http.Request) bool {
	wait, err := strconv.ParseBool(r.URL.Query().Get("wait"))
	return err == nil && wait
}
