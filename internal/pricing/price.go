// Package pricing holds the pure price and unit helpers shared by every normalizer.
package pricing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// PriceSentinel is printed in place of a missing or invalid price
const PriceSentinel = "-"

var (
	priceNoiseRegex = regexp.MustCompile(`[\s\x{00A0}\x{202F}$]`)
	priceValidRegex = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
)

// ParsePrice converts locale currency text such as "$1.348,47" to 1348.47.
// It returns NaN when the text cannot be parsed; callers must check math.IsNaN.
func ParsePrice(text string) float64 {
	cleaned := priceNoiseRegex.ReplaceAllString(text, "")
	cleaned = strings.TrimPrefix(cleaned, "ARS")
	if cleaned == "" {
		return math.NaN()
	}

	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)
	if !priceValidRegex.MatchString(cleaned) {
		return math.NaN()
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return math.NaN()
	}
	return value
}

// ParseAPINumber parses a plain dot-decimal amount as sent by the catalog APIs ("1348.47"),
// falling back to ParsePrice for locale-formatted text.
func ParseAPINumber(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return math.NaN()
	}
	if value, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return value
	}
	return ParsePrice(trimmed)
}

// FormatPrice renders a value as "$1.348,47". NaN and infinities render as PriceSentinel.
func FormatPrice(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return PriceSentinel
	}

	negative := value < 0
	cents := int64(math.Round(math.Abs(value) * 100))
	whole := strconv.FormatInt(cents/100, 10)
	fraction := cents % 100

	var b strings.Builder
	if negative && cents != 0 {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}
	b.WriteByte(',')
	if fraction < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(fraction, 10))
	return b.String()
}

// Valid reports whether v is a usable positive amount
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
