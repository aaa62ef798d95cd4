// Package page reads products out of rendered listing markup.
package page

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/pricing"
)

// Selectors locate the parts of one rendered entry
type Selectors struct {
	Entry         string `mapstructure:"entry" json:"entry"`
	Name          string `mapstructure:"name" json:"name"`
	Description   string `mapstructure:"description" json:"description"`
	PaidPrice     string `mapstructure:"paid_price" json:"paidPrice"`
	ReferenceAttr string `mapstructure:"reference_attr" json:"referenceAttr"`
	Promotion     string `mapstructure:"promotion" json:"promotion"`
	IDAttr        string `mapstructure:"id_attr" json:"idAttr"`
}

// DefaultSelectors matches the host's product card markup
func DefaultSelectors() Selectors {
	return Selectors{
		Entry:         "li.product-card, div.product-card",
		Name:          ".product-name, h3",
		Description:   "p, span, li, small",
		PaidPrice:     "h2, .price-now",
		ReferenceAttr: "data-reference-price",
		Promotion:     ".promo-badge, .offer-label",
		IDAttr:        "data-product-id",
	}
}

// withDefaults fills unset selectors from DefaultSelectors
func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.Entry == "" {
		s.Entry = d.Entry
	}
	if s.Name == "" {
		s.Name = d.Name
	}
	if s.Description == "" {
		s.Description = d.Description
	}
	if s.PaidPrice == "" {
		s.PaidPrice = d.PaidPrice
	}
	if s.ReferenceAttr == "" {
		s.ReferenceAttr = d.ReferenceAttr
	}
	if s.Promotion == "" {
		s.Promotion = d.Promotion
	}
	if s.IDAttr == "" {
		s.IDAttr = d.IDAttr
	}
	return s
}

// NormalizeEntry builds a Product from one rendered entry's markup.
// The unit price comes from a "price per 1|100 <unit>" text, the paid price from the
// heading, and the undiscounted price from the reference attribute, a "regular price"
// text, or the paid price itself.
func NormalizeEntry(markup string, sel Selectors) (*domain.Product, error) {
	sel = sel.withDefaults()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, domain.NewRecordParseError(domain.SourceRendered, 0, "parse markup: %v", err)
	}
	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return nil, domain.NewRecordParseError(domain.SourceRendered, 0, "empty entry markup")
	}

	reading, hasUnitPrice := findUnitPrice(root, sel)

	paid := math.NaN()
	if heading := root.Find(sel.PaidPrice).First(); heading.Length() > 0 {
		paid = pricing.ParsePrice(heading.Text())
	}

	if !hasUnitPrice && !pricing.Valid(paid) {
		return nil, domain.NewRecordParseError(domain.SourceRendered, 0, "no price found")
	}

	ratio := 1.0
	if pricing.Valid(paid) {
		reference := referencePrice(root, sel, paid)
		if pricing.Valid(reference) && paid < reference {
			ratio = paid / reference
		}
	}

	fields := domain.ProductFields{
		SKU:             attr(root, sel.IDAttr),
		Name:            entryName(root, sel),
		Link:            root.Find("a[href]").First().AttrOr("href", ""),
		ImageRef:        root.Find("img[src]").First().AttrOr("src", ""),
		DisplayedPrice:  paid,
		UnitCategory:    domain.CategoryNone,
		DiscountRatio:   ratio,
		PromotionLabels: root.Find(sel.Promotion).Map(func(_ int, s *goquery.Selection) string { return s.Text() }),
		Source:          domain.SourceRendered,
	}
	if hasUnitPrice {
		fields.ReferenceUnitPrice = reading.Price
		fields.UnitCategory = pricing.Classify(reading.Label, reading.Quantity)
	}

	return domain.NewProduct(fields), nil
}

// findUnitPrice checks each descriptive node, then the whole entry text
func findUnitPrice(root *goquery.Selection, sel Selectors) (pricing.UnitPriceText, bool) {
	var (
		reading pricing.UnitPriceText
		found   bool
	)
	root.Find(sel.Description).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		reading, found = pricing.FindUnitPrice(s.Text())
		return !found
	})
	if found {
		return reading, true
	}
	return pricing.FindUnitPrice(root.Text())
}

func referencePrice(root *goquery.Selection, sel Selectors, paid float64) float64 {
	if raw := attr(root, sel.ReferenceAttr); raw != "" {
		if v := pricing.ParseAPINumber(raw); pricing.Valid(v) {
			return v
		}
	}
	if nested := root.Find("[" + sel.ReferenceAttr + "]").First(); nested.Length() > 0 {
		if v := pricing.ParseAPINumber(nested.AttrOr(sel.ReferenceAttr, "")); pricing.Valid(v) {
			return v
		}
	}
	if v, ok := pricing.FindRegularPrice(root.Text()); ok {
		return v
	}
	return paid
}

func entryName(root *goquery.Selection, sel Selectors) string {
	if name := strings.TrimSpace(root.Find(sel.Name).First().Text()); name != "" {
		return name
	}
	return root.Find("img[alt]").First().AttrOr("alt", "")
}

func attr(s *goquery.Selection, name string) string {
	return strings.TrimSpace(s.AttrOr(name, ""))
}
