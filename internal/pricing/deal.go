package pricing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Deal text patterns seen in promotion descriptors
var (
	// "3X2", "4 x 3"
	multiBuyRegex = regexp.MustCompile(`(?i)\b(\d+)\s*x\s*(\d+)\b`)
	// "2do al 50%", "2da unidad al 70%", "3ro al 25 %"
	nthUnitRegex = regexp.MustCompile(`(?i)\b(\d+)\s*(?:do|da|ro|ra|er|to|ta|°|º)?\s*(?:u\.?|un\.?|unidad(?:es)?)?\s*al\s*(\d+(?:[.,]\d+)?)\s*%`)
	// "25% off", "30 % dto", "-20%"
	percentOffRegex = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
)

// unitPriceRegex matches "Precio por 1 Kilogramo: $1.797,96" and "price per 100 g: $55,20"
var unitPriceRegex = regexp.MustCompile(`(?i)(?:precio|price)\s+(?:x|por|per)\s+(1|100)\s*([^\d:$]+?)\s*:?\s*\$\s*([\d.,]+)`)

// regularPriceRegex matches "Precio regular: $1.797,96" and "regular price $10,00"
var regularPriceRegex = regexp.MustCompile(`(?i)(?:precio\s+regular|regular\s+price|precio\s+anterior)\s*:?\s*\$\s*([\d.,]+)`)

// DealRatio derives the fraction of the regular price paid under a textual deal.
// It returns false when the text describes no recognizable discount.
func DealRatio(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	if m := multiBuyRegex.FindStringSubmatch(text); m != nil {
		take, _ := strconv.Atoi(m[1])
		pay, _ := strconv.Atoi(m[2])
		if take > 0 && pay > 0 && pay < take {
			return float64(pay) / float64(take), true
		}
	}

	if m := nthUnitRegex.FindStringSubmatch(text); m != nil {
		nth, _ := strconv.Atoi(m[1])
		percent := parseDecimal(m[2])
		if nth >= 2 && percent >= 0 && percent < 100 {
			return (float64(nth-1) + percent/100) / float64(nth), true
		}
	}

	if m := percentOffRegex.FindStringSubmatch(text); m != nil {
		percent := parseDecimal(m[1])
		if percent > 0 && percent < 100 {
			return 1 - percent/100, true
		}
	}

	return 0, false
}

// UnitPriceText is a "price per N unit" reading found in descriptive text
type UnitPriceText struct {
	Quantity string
	Label    string
	Price    float64
}

// FindUnitPrice scans text for the first "price per 1|100 <unit>: $<amount>" reading
func FindUnitPrice(text string) (UnitPriceText, bool) {
	m := unitPriceRegex.FindStringSubmatch(text)
	if m == nil {
		return UnitPriceText{}, false
	}

	price := ParsePrice(m[3])
	if math.IsNaN(price) {
		return UnitPriceText{}, false
	}

	return UnitPriceText{
		Quantity: m[1],
		Label:    strings.TrimSpace(m[2]),
		Price:    price,
	}, true
}

// FindRegularPrice scans text for a "regular price: $<amount>" reading
func FindRegularPrice(text string) (float64, bool) {
	m := regularPriceRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	price := ParsePrice(m[1])
	if !Valid(price) {
		return 0, false
	}
	return price, true
}

func parseDecimal(s string) float64 {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return -1
	}
	return v
}
