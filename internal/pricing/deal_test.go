package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDealRatio(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"3X2", 2.0 / 3.0, true},
		{"Llevando 4 x 3", 0.75, true},
		{"2do al 50%", 0.75, true},
		{"2da unidad al 70%", 0.85, true},
		{"3ro al 25 %", 0.75, true},
		{"25% off", 0.75, true},
		{"-20%", 0.8, true},
		{"12,5% dto", 0.875, true},
		{"Precio especial", 0, false},
		{"2x2", 0, false},
		{"100%", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := DealRatio(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFindUnitPrice(t *testing.T) {
	t.Run("spanish kilogram reading", func(t *testing.T) {
		reading, ok := FindUnitPrice("Precio por 1 Kilogramo: $1.797,96")
		require.True(t, ok)
		assert.Equal(t, "1", reading.Quantity)
		assert.Equal(t, "Kilogramo", reading.Label)
		assert.InDelta(t, 1797.96, reading.Price, 1e-9)
	})

	t.Run("per 100 grams with abbreviation", func(t *testing.T) {
		reading, ok := FindUnitPrice("Contenido 500 g. Precio x 100 gr: $ 55,20 final")
		require.True(t, ok)
		assert.Equal(t, "100", reading.Quantity)
		assert.Equal(t, "gr", reading.Label)
		assert.InDelta(t, 55.20, reading.Price, 1e-9)
	})

	t.Run("english", func(t *testing.T) {
		reading, ok := FindUnitPrice("price per 1 liter $10,00")
		require.True(t, ok)
		assert.Equal(t, "liter", reading.Label)
		assert.InDelta(t, 10.0, reading.Price, 1e-9)
	})

	t.Run("absent", func(t *testing.T) {
		_, ok := FindUnitPrice("Arroz largo fino 1 kg")
		assert.False(t, ok)
	})
}

func TestFindRegularPrice(t *testing.T) {
	v, ok := FindRegularPrice("Precio regular: $1.797,96")
	require.True(t, ok)
	assert.InDelta(t, 1797.96, v, 1e-9)

	v, ok = FindRegularPrice("Regular price $10,00")
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-9)

	_, ok = FindRegularPrice("Precio: $10,00")
	assert.False(t, ok)
}
