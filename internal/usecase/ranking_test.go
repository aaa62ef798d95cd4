package usecase

import (
	"testing"

	"github.com/truecost/backend/internal/domain"
)

func product(sku string, category domain.UnitCategory, reference, ratio float64) *domain.Product {
	return domain.NewProduct(domain.ProductFields{
		SKU:                sku,
		ReferenceUnitPrice: reference,
		UnitCategory:       category,
		DiscountRatio:      ratio,
	})
}

func skus(products []*domain.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		if p == nil {
			out[i] = "<nil>"
			continue
		}
		out[i] = p.SKU
	}
	return out
}

func TestOrderByUnitPrice(t *testing.T) {
	products := []*domain.Product{
		product("none-1", domain.CategoryNone, 0, 1),
		product("w-300", domain.CategoryWeight, 300, 1),
		nil,
		product("vol", domain.CategoryVolume, 10, 1),
		product("w-400-sale", domain.CategoryWeight, 400, 0.6),
		product("w-200", domain.CategoryWeight, 200, 1),
		product("w-200-again", domain.CategoryWeight, 200, 1),
	}

	order := orderByUnitPrice(products, domain.CategoryWeight, nil)

	got := make([]string, len(order))
	for i, idx := range order {
		got[i] = skus(products[idx : idx+1])[0]
	}
	want := []string{"w-200", "w-200-again", "w-400-sale", "w-300", "none-1", "<nil>", "vol"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRankByCategory(t *testing.T) {
	products := []*domain.Product{
		product("a", domain.CategoryVolume, 900, 1),
		product("b", domain.CategoryWeight, 900, 1),
		product("c", domain.CategoryVolume, 1000, 0.6),
		product("d", domain.CategoryVolume, 0, 1),
	}

	ranked := RankByCategory(products, domain.CategoryVolume)

	got := skus(ranked)
	if len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Errorf("ranked = %v, want [c a]", got)
	}

	if len(RankByCategory(products, domain.CategoryArea)) != 0 {
		t.Error("no product is priced per area")
	}
	if len(RankByCategory(nil, domain.CategoryWeight)) != 0 {
		t.Error("nil input should rank nothing")
	}
}

func TestOrderByUnitPrice_FollowsRank(t *testing.T) {
	products := []*domain.Product{
		product("n", domain.CategoryNone, 0, 1),
		product("w-a", domain.CategoryWeight, 100, 1),
		product("v", domain.CategoryVolume, 10, 1),
		product("w-b", domain.CategoryWeight, 100, 1),
	}
	// positions before any reordering: w-b, v, w-a, n
	rank := []int{3, 2, 1, 0}

	order := orderByUnitPrice(products, domain.CategoryWeight, rank)

	got := make([]string, len(order))
	for i, idx := range order {
		got[i] = products[idx].SKU
	}
	want := []string{"w-b", "w-a", "v", "n"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
