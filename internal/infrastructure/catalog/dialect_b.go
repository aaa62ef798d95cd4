package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/pricing"
)

// DefaultTaxMultiplier converts a tax-exclusive amount into the shelf price (21% VAT)
const DefaultTaxMultiplier = 1.21

// ErrResponseMissing is returned when a dialect B body lacks the response object
var ErrResponseMissing = errors.New("response object not found")

// FlexNumber accepts a JSON number or a numeric string; absent or invalid values are NaN
type FlexNumber float64

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	*n = FlexNumber(math.NaN())
	text, ok := scalarText(data)
	if !ok {
		return nil
	}
	*n = FlexNumber(pricing.ParseAPINumber(text))
	return nil
}

// Float returns the value, NaN when absent
func (n *FlexNumber) Float() float64 {
	if n == nil {
		return math.NaN()
	}
	return float64(*n)
}

// DialectBPrice is one entry of the price array
type DialectBPrice struct {
	PriceWithoutTax *FlexNumber `json:"priceWithoutTax"`
}

// DialectBData is the structured product payload of a dialect B result
type DialectBData struct {
	ID               string            `json:"id"`
	SKUDisplayName   string            `json:"sku_display_name"`
	SKUDescription   string            `json:"sku_description"`
	URL              string            `json:"url"`
	LargeImageURL    string            `json:"product_large_image_url"`
	MediumImageURL   string            `json:"product_medium_image_url"`
	ImageURL         string            `json:"image_url"`
	ProductFormat    string            `json:"product_format"`
	ProductListPrice *FlexNumber       `json:"product_list_price"`
	Price            []DialectBPrice   `json:"price"`
	SaleType         []string          `json:"sale_type"`
	Discounts        []json.RawMessage `json:"discounts"`
}

// DialectBResult is one search result
type DialectBResult struct {
	Value string       `json:"value"`
	Data  DialectBData `json:"data"`
}

// DialectBPage is a decoded dialect B page
type DialectBPage struct {
	Total   int
	Results []DialectBResult
}

type dialectBEnvelope struct {
	Response *struct {
		TotalNumResults *FlexNumber      `json:"total_num_results"`
		Results         []DialectBResult `json:"results"`
	} `json:"response"`
}

// DecodeDialectBPage decodes a dialect B body, failing when the response object or
// its total is absent.
func DecodeDialectBPage(body []byte) (*DialectBPage, error) {
	var env dialectBEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode dialect B body: %w", err)
	}
	if env.Response == nil {
		return nil, ErrResponseMissing
	}

	total := env.Response.TotalNumResults.Float()
	if math.IsNaN(total) {
		return nil, fmt.Errorf("%w: total_num_results absent", ErrResponseMissing)
	}

	return &DialectBPage{
		Total:   int(total),
		Results: env.Response.Results,
	}, nil
}

// MapDialectB converts one structured result into a canonical Product.
// The current price is the highest of the list price and the tax-inclusive price entries;
// the lowest tax-inclusive entry below it sets the discount ratio.
func MapDialectB(res DialectBResult, index int, origin string, taxMultiplier float64) (*domain.Product, error) {
	if taxMultiplier <= 0 {
		taxMultiplier = DefaultTaxMultiplier
	}
	data := res.Data

	current := data.ProductListPrice.Float()
	if !pricing.Valid(current) {
		current = 0
	}
	lowest := math.Inf(1)
	for _, p := range data.Price {
		amount := p.PriceWithoutTax.Float()
		if !pricing.Valid(amount) {
			continue
		}
		withTax := amount * taxMultiplier
		current = math.Max(current, withTax)
		lowest = math.Min(lowest, withTax)
	}

	if !pricing.Valid(current) {
		return nil, domain.NewRecordParseError(domain.SourceDialectB, index, "no usable price")
	}

	ratio := 1.0
	if lowest < current {
		ratio = lowest / current
	}

	category, reference := dialectBUnitPrice(data, current)

	var labels []string
	for _, saleType := range data.SaleType {
		if strings.TrimSpace(saleType) != AllOffersSentinel {
			labels = append(labels, saleType)
		}
	}
	for _, raw := range data.Discounts {
		if label := discountLabel(raw); label != "" {
			labels = append(labels, label)
		}
	}

	name := data.SKUDisplayName
	if strings.TrimSpace(name) == "" {
		name = res.Value
	}
	image := firstNonEmpty(data.LargeImageURL, data.MediumImageURL, data.ImageURL)

	return domain.NewProduct(domain.ProductFields{
		SKU:                data.ID,
		Name:               name,
		Link:               Absolute(origin, data.URL),
		ImageRef:           Absolute(origin, image),
		DisplayedPrice:     current,
		ReferenceUnitPrice: reference,
		UnitCategory:       category,
		DiscountRatio:      ratio,
		PromotionLabels:    labels,
		Source:             domain.SourceDialectB,
	}), nil
}

// dialectBUnitPrice reads a "price per N unit" statement from the description, falling
// back to dividing the current price by a measurable package format.
func dialectBUnitPrice(data DialectBData, current float64) (domain.UnitCategory, float64) {
	if reading, ok := pricing.FindUnitPrice(data.SKUDescription); ok {
		return pricing.Classify(reading.Label, reading.Quantity), reading.Price
	}

	quantityText, label := pricing.ParseFormat(data.ProductFormat)
	measure, ok := pricing.MeasureOf(label)
	if !ok {
		return domain.CategoryNone, 0
	}
	quantity, err := strconv.ParseFloat(quantityText, 64)
	if err != nil || quantity <= 0 {
		return domain.CategoryNone, 0
	}

	if measure.Grams && quantity == 100 {
		return domain.CategoryPer100g, current
	}
	return measure.Category, current / (quantity * measure.Factor)
}

// discountLabel renders one discounts entry: a plain string, or the first text field of
// an object.
func discountLabel(raw json.RawMessage) string {
	if text, ok := scalarText(raw); ok {
		return strings.TrimSpace(text)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &obj); err != nil {
		return ""
	}
	for _, key := range []string{"name", "description", "text", "label", "displayName"} {
		if text, ok := scalarText(obj[key]); ok && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
