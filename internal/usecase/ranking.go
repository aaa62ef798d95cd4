package usecase

import (
	"sort"

	"github.com/truecost/backend/internal/domain"
)

// orderByUnitPrice returns product indices: those comparable in category first, cheapest
// adjusted unit price first, then the rest. Equal prices and the rest follow rank, the
// position each product had before any reordering; a nil rank means input order.
func orderByUnitPrice(products []*domain.Product, category domain.UnitCategory, rank []int) []int {
	if rank == nil {
		rank = make([]int, len(products))
		for i := range rank {
			rank[i] = i
		}
	}

	ranked := make([]int, 0, len(products))
	rest := make([]int, 0, len(products))
	for i, p := range products {
		if p != nil && p.Rankable(category) {
			ranked = append(ranked, i)
		} else {
			rest = append(rest, i)
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		pa, pb := products[ranked[a]].AdjustedUnitPrice, products[ranked[b]].AdjustedUnitPrice
		if pa != pb {
			return pa < pb
		}
		return rank[ranked[a]] < rank[ranked[b]]
	})
	sort.SliceStable(rest, func(a, b int) bool {
		return rank[rest[a]] < rank[rest[b]]
	})

	return append(ranked, rest...)
}

// RankByCategory returns only the products comparable in category, cheapest true unit
// price first
func RankByCategory(products []*domain.Product, category domain.UnitCategory) []*domain.Product {
	order := orderByUnitPrice(products, category, nil)
	result := make([]*domain.Product, 0, len(order))
	for _, idx := range order {
		p := products[idx]
		if p == nil || !p.Rankable(category) {
			break
		}
		result = append(result, p)
	}
	return result
}
