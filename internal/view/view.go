// Package view derives the aggregate figures shown next to a cart or wishlist.
package view

import "github.com/ddmuddatsir/marketin-website-sub000/internal/domain"

// Summary holds the derived figures for one collection.
type Summary struct {
	// Total is the sum of price x quantity over resolved cart items, in minor units.
	Total int64 `json:"total"`
	// Count is the sum of quantities for a cart or the number of entries for a wishlist.
	Count int `json:"count"`
	// Unresolved is the number of entries excluded from Total.
	Unresolved int `json:"unresolved"`
}

// Project computes the summary for items. It is a pure function of its input.
func Project(kind domain.Kind, items []domain.LineItem) Summary {
	var s Summary
	if !kind.HasQuantity() {
		s.Count = len(items)
		for _, item := range items {
			if item.Unresolved {
				s.Unresolved++
			}
		}
		return s
	}

	for _, item := range items {
		s.Count += item.Quantity
		if item.Unresolved {
			s.Unresolved++
			continue
		}
		s.Total += item.Subtotal()
	}
	return s
}

// ProjectCollection is Project applied to a collection.
func ProjectCollection(c domain.Collection) Summary {
	return Project(c.Kind, c.Items)
}
