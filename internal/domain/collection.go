package domain

// Collection is the ordered item list of one cart or wishlist, keyed by product id.
// Transform methods never modify the receiver; they return a new collection.
type Collection struct {
	Kind  Kind       `json:"kind"`
	Items []LineItem `json:"items"`
}

// NewCollection returns an empty collection of the given kind.
func NewCollection(kind Kind) Collection {
	return Collection{Kind: kind, Items: []LineItem{}}
}

// Clone returns a deep copy.
func (c Collection) Clone() Collection {
	items := make([]LineItem, len(c.Items))
	copy(items, c.Items)
	return Collection{Kind: c.Kind, Items: items}
}

// WithItems returns a collection of the same kind holding a normalized copy of items.
func (c Collection) WithItems(items []LineItem) Collection {
	return Collection{Kind: c.Kind, Items: Normalize(c.Kind, items)}
}

// Find returns the index of the item for productID, or -1.
func (c Collection) Find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Get returns the item for productID.
func (c Collection) Get(productID string) (LineItem, bool) {
	if i := c.Find(productID); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}

// Len returns the number of distinct products.
func (c Collection) Len() int {
	return len(c.Items)
}

// Add inserts item, or for a cart merges its quantity into the existing entry.
// Adding an already present product to a wishlist is a no-op. The second result
// reports whether anything changed.
func (c Collection) Add(item LineItem) (Collection, bool) {
	out := c.Clone()
	if !c.Kind.HasQuantity() {
		item.Quantity = 0
	}

	i := out.Find(item.ProductID)
	if i < 0 {
		out.Items = append(out.Items, item)
		return out, true
	}
	if !c.Kind.HasQuantity() {
		return c, false
	}

	existing := &out.Items[i]
	existing.Quantity += item.Quantity
	if item.HasSnapshot() {
		existing.Name = item.Name
		existing.Price = item.Price
		existing.Image = item.Image
		existing.Unresolved = false
	}
	return out, true
}

// Remove drops the entry for productID.
func (c Collection) Remove(productID string) (Collection, bool) {
	i := c.Find(productID)
	if i < 0 {
		return c, false
	}
	out := c.Clone()
	out.Items = append(out.Items[:i], out.Items[i+1:]...)
	return out, true
}

// SetQuantity sets the quantity for productID; a quantity <= 0 removes the entry.
func (c Collection) SetQuantity(productID string, quantity int) (Collection, bool) {
	i := c.Find(productID)
	if i < 0 || !c.Kind.HasQuantity() {
		return c, false
	}
	if quantity <= 0 {
		return c.Remove(productID)
	}
	if c.Items[i].Quantity == quantity {
		return c, false
	}
	out := c.Clone()
	out.Items[i].Quantity = quantity
	return out, true
}

// Increase adds one to the quantity for productID.
func (c Collection) Increase(productID string) (Collection, bool) {
	item, ok := c.Get(productID)
	if !ok {
		return c, false
	}
	return c.SetQuantity(productID, item.Quantity+1)
}

// Decrease subtracts one from the quantity for productID but never goes below 1.
// Removal has to go through Remove.
func (c Collection) Decrease(productID string) (Collection, bool) {
	item, ok := c.Get(productID)
	if !ok || item.Quantity <= 1 {
		return c, false
	}
	return c.SetQuantity(productID, item.Quantity-1)
}

// Clear drops every entry.
func (c Collection) Clear() (Collection, bool) {
	if len(c.Items) == 0 {
		return c, false
	}
	return NewCollection(c.Kind), true
}

// Normalize enforces the collection invariants on items read from an outside source:
// one entry per product (duplicates merged for carts), no empty product ids and, for
// carts, no quantity below 1.
func Normalize(kind Kind, items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if kind.HasQuantity() {
			if item.Quantity <= 0 {
				continue
			}
		} else {
			item.Quantity = 0
		}
		if i, ok := index[item.ProductID]; ok {
			if kind.HasQuantity() {
				out[i].Quantity += item.Quantity
			}
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
