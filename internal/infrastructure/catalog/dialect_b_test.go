package catalog

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecost/backend/internal/domain"
)

const dialectBFixture = `{
  "request": {"page": 1, "num_results_per_page": 24},
  "response": {
    "total_num_results": "3",
    "results": [
      {
        "value": "Leche entera",
        "data": {
          "id": "b1",
          "sku_display_name": "Leche entera 1 L",
          "sku_description": "Leche entera. Precio x 1 Litro: $1.210,00",
          "url": "/leche/p",
          "product_large_image_url": "//cdn.example/leche.jpg",
          "product_list_price": 1210,
          "price": [{"priceWithoutTax": 1000}, {"priceWithoutTax": "800"}],
          "sale_type": ["Todas las Ofertas", "2do al 50%"],
          "discounts": [{"name": "Promo banco"}, "Club", {"id": 3}]
        }
      },
      {
        "value": "Arroz largo fino",
        "data": {
          "id": "b2",
          "sku_display_name": "",
          "url": "https://shop.example/arroz/p",
          "product_format": "500 Gramos",
          "price": [{"priceWithoutTax": 500}]
        }
      },
      {
        "value": "Cacao",
        "data": {
          "id": "b3",
          "sku_display_name": "Cacao amargo",
          "product_format": "100 Gramos",
          "price": [{"priceWithoutTax": null}],
          "product_list_price": "363"
        }
      }
    ]
  }
}`

func TestDecodeDialectBPage(t *testing.T) {
	page, err := DecodeDialectBPage([]byte(dialectBFixture))
	require.NoError(t, err)

	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Results, 3)
	assert.Equal(t, "b1", page.Results[0].Data.ID)
	assert.InDelta(t, 800, page.Results[0].Data.Price[1].PriceWithoutTax.Float(), 1e-9)
}

func TestDecodeDialectBPage_Errors(t *testing.T) {
	_, err := DecodeDialectBPage([]byte(`{"request":{}}`))
	assert.ErrorIs(t, err, ErrResponseMissing)

	_, err = DecodeDialectBPage([]byte(`{"response":{"results":[]}}`))
	assert.ErrorIs(t, err, ErrResponseMissing)

	_, err = DecodeDialectBPage([]byte(`[`))
	assert.Error(t, err)
}

func TestFlexNumber(t *testing.T) {
	var values struct {
		A *FlexNumber `json:"a"`
		B *FlexNumber `json:"b"`
		C *FlexNumber `json:"c"`
		D *FlexNumber `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12.5, "b": "1.348,47", "c": "n/a"}`), &values))

	assert.InDelta(t, 12.5, values.A.Float(), 1e-9)
	assert.InDelta(t, 1348.47, values.B.Float(), 1e-9)
	assert.True(t, math.IsNaN(values.C.Float()))
	assert.True(t, math.IsNaN(values.D.Float()))
}

func TestMapDialectB(t *testing.T) {
	page, err := DecodeDialectBPage([]byte(dialectBFixture))
	require.NoError(t, err)
	origin := "https://shop.example"

	t.Run("description unit price and lowest price array entry", func(t *testing.T) {
		p, err := MapDialectB(page.Results[0], 0, origin, DefaultTaxMultiplier)
		require.NoError(t, err)

		assert.Equal(t, "b1", p.SKU)
		assert.Equal(t, "Leche entera 1 L", p.Name)
		assert.Equal(t, "https://shop.example/leche/p", p.Link)
		assert.Equal(t, "https://cdn.example/leche.jpg", p.ImageRef)
		assert.InDelta(t, 1210, p.DisplayedPrice, 1e-6)
		assert.InDelta(t, 1210, p.ReferenceUnitPrice, 1e-6)
		assert.Equal(t, domain.CategoryVolume, p.UnitCategory)
		assert.InDelta(t, 0.8, p.DiscountRatio, 1e-6)
		assert.InDelta(t, 968, p.AdjustedUnitPrice, 1e-6)
		assert.Equal(t, []string{"2do al 50%", "Promo banco", "Club"}, p.PromotionLabels)
		assert.Equal(t, domain.SourceDialectB, p.Source)
	})

	t.Run("unit price from package format", func(t *testing.T) {
		p, err := MapDialectB(page.Results[1], 1, origin, DefaultTaxMultiplier)
		require.NoError(t, err)

		assert.Equal(t, "Arroz largo fino", p.Name)
		assert.InDelta(t, 605, p.DisplayedPrice, 1e-6)
		assert.Equal(t, domain.CategoryWeight, p.UnitCategory)
		assert.InDelta(t, 1210, p.ReferenceUnitPrice, 1e-6)
		assert.Equal(t, 1.0, p.DiscountRatio)
	})

	t.Run("hundred gram packages rank per 100g", func(t *testing.T) {
		p, err := MapDialectB(page.Results[2], 2, origin, DefaultTaxMultiplier)
		require.NoError(t, err)

		assert.Equal(t, domain.CategoryPer100g, p.UnitCategory)
		assert.InDelta(t, 363, p.ReferenceUnitPrice, 1e-9)
		assert.Equal(t, "", p.Link)
	})

	t.Run("custom tax multiplier", func(t *testing.T) {
		p, err := MapDialectB(page.Results[1], 1, origin, 1.5)
		require.NoError(t, err)
		assert.InDelta(t, 750, p.DisplayedPrice, 1e-9)
	})

	t.Run("no usable price", func(t *testing.T) {
		_, err := MapDialectB(DialectBResult{Value: "Sin precio"}, 9, origin, DefaultTaxMultiplier)
		assert.ErrorIs(t, err, domain.ErrRecordParse)
	})

	t.Run("unmeasurable format", func(t *testing.T) {
		res := DialectBResult{Data: DialectBData{
			ProductFormat: "1 Docena",
			Price:         []DialectBPrice{{PriceWithoutTax: flex(100)}},
		}}
		p, err := MapDialectB(res, 0, origin, DefaultTaxMultiplier)
		require.NoError(t, err)
		assert.Equal(t, domain.CategoryNone, p.UnitCategory)
		assert.Zero(t, p.ReferenceUnitPrice)
	})
}

func flex(v float64) *FlexNumber {
	n := FlexNumber(v)
	return &n
}
