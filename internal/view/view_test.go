package view

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
)

func TestProject_CartTotals(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "1", Price: 10, Quantity: 2},
		{ProductID: "2", Price: 5, Quantity: 3},
	}

	s := Project(domain.KindCart, items)
	assert.Equal(t, int64(35), s.Total)
	assert.Equal(t, 5, s.Count)

	s = Project(domain.KindCart, items[:1])
	assert.Equal(t, int64(20), s.Total)
	assert.Equal(t, 2, s.Count)
}

func TestProject_UnresolvedExcludedFromTotal(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "1", Price: 10, Quantity: 2},
		{ProductID: "2", Quantity: 4, Unresolved: true},
	}

	s := Project(domain.KindCart, items)
	assert.Equal(t, int64(20), s.Total)
	assert.Equal(t, 6, s.Count)
	assert.Equal(t, 1, s.Unresolved)
}

func TestProject_WishlistCountsEntries(t *testing.T) {
	items := []domain.LineItem{
		{ProductID: "1", Price: 10},
		{ProductID: "2", Price: 5},
		{ProductID: "3", Unresolved: true},
	}

	s := Project(domain.KindWishlist, items)
	assert.Equal(t, 3, s.Count)
	assert.Zero(t, s.Total)
	assert.Equal(t, 1, s.Unresolved)
}

func TestProject_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Project(domain.KindCart, nil))
	assert.Equal(t, Summary{}, ProjectCollection(domain.NewCollection(domain.KindWishlist)))
}
