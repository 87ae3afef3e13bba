package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two collections a profile holds.
type Kind string

const (
	KindCart     Kind = "cart"
	KindWishlist Kind = "wishlist"
)

// ParseKind validates a textual collection kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCart:
		return KindCart, nil
	case KindWishlist:
		return KindWishlist, nil
	default:
		return "", fmt.Errorf("unknown collection kind %q", s)
	}
}

// HasQuantity reports whether items of this kind carry a quantity.
func (k Kind) HasQuantity() bool {
	return k == KindCart
}

const localIDPrefix = "local-"

// NewLocalID returns a temporary id for an item not yet confirmed by the remote store.
func NewLocalID() string {
	return localIDPrefix + uuid.New().String()
}

// IsLocalID reports whether id was assigned locally and is unknown to the remote store.
func IsLocalID(id string) bool {
	return id == "" || strings.HasPrefix(id, localIDPrefix)
}

// LineItem is one product entry in a cart or wishlist.
type LineItem struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity,omitempty"`
	Price     int64     `json:"price"`
	Name      string    `json:"name,omitempty"`
	Image     string    `json:"image,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	// Unresolved is set when no product snapshot could be obtained.
	Unresolved bool `json:"unresolved,omitempty"`
}

// HasSnapshot reports whether the item carries denormalized product data.
func (i LineItem) HasSnapshot() bool {
	return i.Name != "" || i.Price > 0
}

// Subtotal returns price times quantity in minor currency units.
func (i LineItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Snapshot is the denormalized product data copied into a line item at add time.
type Snapshot struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Image string `json:"image"`
}

// Apply copies the snapshot into the item and clears the unresolved flag.
func (s Snapshot) Apply(item *LineItem) {
	item.Name = s.Name
	item.Price = s.Price
	item.Image = s.Image
	item.Unresolved = false
}
