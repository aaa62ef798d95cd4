package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/pricing"
)

// Dialect A attribute keys
const (
	AttrProductName   = "product.displayName"
	AttrSKUName       = "sku.displayName"
	AttrLargeImage    = "product.largeImage.url"
	AttrMediumImage   = "product.mediumImage.url"
	AttrActivePrice   = "sku.activePrice"
	AttrReference     = "sku.referencePrice"
	AttrListPrice     = "sku.listPrice"
	AttrFormat        = "product.cFormato"
	AttrDeals         = "product.dtoDescuentos"
	AttrOfferTypes    = "product.tipoOferta"
	AttrSKUID         = "sku.repositoryId"
	AttrProductID     = "product.repositoryId"
	AllOffersSentinel = "Todas las Ofertas"
)

// ErrResultsContainerNotFound is returned when a dialect A body has no results container
var ErrResultsContainerNotFound = errors.New("results container not found")

// AttributeValues is a dialect A attribute value list; numbers are kept as their text
type AttributeValues []string

func (v *AttributeValues) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// a few attributes arrive as a bare scalar
		raw = []json.RawMessage{data}
	}

	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := scalarText(item); ok {
			values = append(values, s)
		}
	}
	*v = values
	return nil
}

// DialectARecord is one product record inside the results container
type DialectARecord struct {
	Attributes    map[string]AttributeValues `json:"attributes"`
	DetailsAction struct {
		RecordState string `json:"recordState"`
	} `json:"detailsAction"`
}

// Attr returns the first value of an attribute, or ""
func (r DialectARecord) Attr(key string) string {
	values := r.Attributes[key]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

type dialectAGroup struct {
	DialectARecord
	Records []DialectARecord `json:"records"`
}

// DialectAPage is a decoded dialect A listing page
type DialectAPage struct {
	Total   int
	Records []DialectARecord
}

// DecodeDialectAPage locates the nested results container (the object carrying both
// totalNumRecs and records) anywhere in the document and flattens its record groups.
func DecodeDialectAPage(body []byte) (*DialectAPage, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode dialect A body: %w", err)
	}

	container := findResultsContainer(doc)
	if container == nil {
		return nil, ErrResultsContainerNotFound
	}

	total, err := numberValue(container["totalNumRecs"])
	if err != nil {
		return nil, fmt.Errorf("totalNumRecs: %w", err)
	}

	raw, err := json.Marshal(container["records"])
	if err != nil {
		return nil, fmt.Errorf("re-encode records: %w", err)
	}
	var groups []dialectAGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	page := &DialectAPage{Total: total}
	for _, group := range groups {
		if len(group.Records) == 0 && len(group.Attributes) > 0 {
			page.Records = append(page.Records, group.DialectARecord)
			continue
		}
		page.Records = append(page.Records, group.Records...)
	}
	return page, nil
}

// findResultsContainer searches breadth first so the shallowest container wins; objects
// are visited in sorted key order and arrays in index order, which keeps the choice
// stable across decodes.
func findResultsContainer(root any) map[string]any {
	queue := []any{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		switch v := node.(type) {
		case map[string]any:
			if _, ok := v["totalNumRecs"]; ok {
				if _, ok := v["records"].([]any); ok {
					return v
				}
			}
			for _, key := range slices.Sorted(maps.Keys(v)) {
				queue = append(queue, v[key])
			}
		case []any:
			queue = append(queue, v...)
		}
	}
	return nil
}

func numberValue(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int(f), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// dealDescriptor is one entry of the JSON-encoded product.dtoDescuentos attribute
type dealDescriptor struct {
	PrecioDescuento json.RawMessage `json:"precioDescuento"`
	TextoLlevando   string          `json:"textoLlevando"`
	TextoDescuento  string          `json:"textoDescuento"`
}

func (d dealDescriptor) label() string {
	return strings.TrimSpace(strings.TrimSpace(d.TextoDescuento) + " " + strings.TrimSpace(d.TextoLlevando))
}

// MapDialectA converts one attribute-bag record into a canonical Product
func MapDialectA(rec DialectARecord, index int, origin string) (*domain.Product, error) {
	active := pricing.ParseAPINumber(rec.Attr(AttrActivePrice))
	if !pricing.Valid(active) {
		return nil, domain.NewRecordParseError(domain.SourceDialectA, index,
			"missing or invalid %s %q", AttrActivePrice, rec.Attr(AttrActivePrice))
	}

	quantity, label := pricing.ParseFormat(rec.Attr(AttrFormat))
	reference := pricing.ParseAPINumber(rec.Attr(AttrReference))
	if math.IsNaN(reference) {
		reference = 0
	}

	deals := parseDeals(rec.Attr(AttrDeals))
	ratio := dialectARatio(deals, active, pricing.ParseAPINumber(rec.Attr(AttrListPrice)))

	var labels []string
	for _, d := range deals {
		labels = append(labels, d.label())
	}
	for _, offer := range rec.Attributes[AttrOfferTypes] {
		if strings.TrimSpace(offer) != AllOffersSentinel {
			labels = append(labels, offer)
		}
	}

	name := rec.Attr(AttrProductName)
	if name == "" {
		name = rec.Attr(AttrSKUName)
	}
	image := rec.Attr(AttrLargeImage)
	if image == "" {
		image = rec.Attr(AttrMediumImage)
	}
	sku := rec.Attr(AttrSKUID)
	if sku == "" {
		sku = rec.Attr(AttrProductID)
	}

	return domain.NewProduct(domain.ProductFields{
		SKU:                sku,
		Name:               name,
		Link:               Absolute(origin, rec.DetailsAction.RecordState),
		ImageRef:           Absolute(origin, image),
		DisplayedPrice:     active,
		ReferenceUnitPrice: reference,
		UnitCategory:       pricing.Classify(label, quantity),
		DiscountRatio:      ratio,
		PromotionLabels:    labels,
		Source:             domain.SourceDialectA,
	}), nil
}

// dialectARatio applies the precedence: best deal descriptor, then list price, then 1
func dialectARatio(deals []dealDescriptor, active, list float64) float64 {
	best := 1.0
	for _, d := range deals {
		candidate := dealCandidate(d, active)
		if candidate > 0 && candidate < best {
			best = candidate
		}
	}
	if best < 1 {
		return best
	}

	if pricing.Valid(list) && list > active {
		return active / list
	}
	return 1
}

// dealCandidate returns the ratio one descriptor implies, or 0 when it implies none.
// An explicit effective price wins over the deal text.
func dealCandidate(d dealDescriptor, active float64) float64 {
	if text, ok := scalarText(d.PrecioDescuento); ok {
		if price := pricing.ParseAPINumber(text); pricing.Valid(price) {
			return price / active
		}
	}
	if ratio, ok := pricing.DealRatio(d.TextoDescuento); ok {
		return ratio
	}
	return 0
}

// parseDeals decodes the JSON-encoded descriptor array; anything unparsable yields none
func parseDeals(raw string) []dealDescriptor {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var deals []dealDescriptor
	if err := json.Unmarshal([]byte(raw), &deals); err != nil {
		return nil
	}
	return deals
}

// scalarText renders a JSON string or number as text
func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), true
	}
	return "", false
}
