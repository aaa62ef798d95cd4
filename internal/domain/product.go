package domain

import (
	"math"
	"strings"
)

// UnitCategory is the canonical unit a reference price is expressed in
type UnitCategory string

const (
	CategoryWeight  UnitCategory = "weight"  // per kilogram
	CategoryVolume  UnitCategory = "volume"  // per liter
	CategoryPer100g UnitCategory = "per100g" // per 100 grams
	CategoryArea    UnitCategory = "area"    // per square meter
	CategoryCount   UnitCategory = "count"   // per item
	CategoryNone    UnitCategory = "none"
)

// RankableCategories lists the categories products can be compared in
var RankableCategories = []UnitCategory{
	CategoryWeight,
	CategoryVolume,
	CategoryPer100g,
	CategoryArea,
	CategoryCount,
}

// ParseUnitCategory converts a user-supplied category name, returning false for unknown names
func ParseUnitCategory(s string) (UnitCategory, bool) {
	c := UnitCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RankableCategories {
		if c == known {
			return c, true
		}
	}
	return CategoryNone, false
}

// Source identifies where a product record came from
type Source string

const (
	SourceDialectA Source = "dialect-a"
	SourceDialectB Source = "dialect-b"
	SourceRendered Source = "rendered"
)

// DefaultProductName is used when a record carries no display name
const DefaultProductName = "Producto sin nombre"

// Product is the canonical, dialect-independent product with a single true unit price.
// It is built by NewProduct and must not be mutated afterwards.
type Product struct {
	SKU                string       `json:"sku,omitempty" yaml:"sku,omitempty"`
	Name               string       `json:"name" yaml:"name"`
	Link               string       `json:"link,omitempty" yaml:"link,omitempty"`
	ImageRef           string       `json:"imageRef,omitempty" yaml:"imageRef,omitempty"`
	DisplayedPrice     float64      `json:"displayedPrice" yaml:"displayedPrice"`
	ReferenceUnitPrice float64      `json:"referenceUnitPrice" yaml:"referenceUnitPrice"`
	UnitCategory       UnitCategory `json:"unitCategory" yaml:"unitCategory"`
	DiscountRatio      float64      `json:"discountRatio" yaml:"discountRatio"`
	AdjustedUnitPrice  float64      `json:"adjustedUnitPrice" yaml:"adjustedUnitPrice"`
	PromotionLabels    []string     `json:"promotionLabels,omitempty" yaml:"promotionLabels,omitempty"`
	Source             Source       `json:"source" yaml:"source"`
}

// ProductFields carries the raw values a normalizer extracted from one record
type ProductFields struct {
	SKU                string
	Name               string
	Link               string
	ImageRef           string
	DisplayedPrice     float64
	ReferenceUnitPrice float64
	UnitCategory       UnitCategory
	DiscountRatio      float64
	PromotionLabels    []string
	Source             Source
}

// NewProduct builds a Product, clamping values so that 0 < DiscountRatio <= 1 and
// AdjustedUnitPrice <= ReferenceUnitPrice always hold.
func NewProduct(f ProductFields) *Product {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = DefaultProductName
	}

	reference := f.ReferenceUnitPrice
	if !isPositive(reference) {
		reference = 0
	}

	displayed := f.DisplayedPrice
	if !isPositive(displayed) {
		displayed = 0
	}

	ratio := f.DiscountRatio
	if !isPositive(ratio) || ratio > 1 {
		ratio = 1
	}

	category := f.UnitCategory
	if category == "" {
		category = CategoryNone
	}

	return &Product{
		SKU:                strings.TrimSpace(f.SKU),
		Name:               name,
		Link:               strings.TrimSpace(f.Link),
		ImageRef:           strings.TrimSpace(f.ImageRef),
		DisplayedPrice:     displayed,
		ReferenceUnitPrice: reference,
		UnitCategory:       category,
		DiscountRatio:      ratio,
		AdjustedUnitPrice:  reference * ratio,
		PromotionLabels:    dedupeLabels(f.PromotionLabels),
		Source:             f.Source,
	}
}

// Rankable reports whether the product can be compared within the given category
func (p *Product) Rankable(category UnitCategory) bool {
	return category != CategoryNone &&
		p.UnitCategory == category &&
		p.ReferenceUnitPrice > 0
}

// HasDiscount reports whether a promotion lowers the unit price
func (p *Product) HasDiscount() bool {
	return p.DiscountRatio < 1
}

func isPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// dedupeLabels trims labels, drops empties and duplicates, keeping first-seen order
func dedupeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(labels))
	result := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.Join(strings.Fields(label), " ")
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		result = append(result, label)
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
