package pricing

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/truecost/backend/internal/domain"
)

// vocabularyEntry is one known unit spelling. Abbreviations must match a whole word,
// full words match as a prefix ("kilogramo", "kilos", "kilogram").
type vocabularyEntry struct {
	token    string
	category domain.UnitCategory
	wordOnly bool
}

// Order matters: area is checked before anything that could match "metro", and
// "kilo" before "gramo" so "kilogramo" is weight.
var unitVocabulary = []vocabularyEntry{
	{"metro cuadrado", domain.CategoryArea, false},
	{"metros cuadrados", domain.CategoryArea, false},
	{"square met", domain.CategoryArea, false},
	{"m2", domain.CategoryArea, true},
	{"mt2", domain.CategoryArea, true},
	{"m²", domain.CategoryArea, true},

	{"kilo", domain.CategoryWeight, false},
	{"kg", domain.CategoryWeight, true},
	{"kgs", domain.CategoryWeight, true},

	{"litro", domain.CategoryVolume, false},
	{"liter", domain.CategoryVolume, false},
	{"litre", domain.CategoryVolume, false},
	{"lt", domain.CategoryVolume, true},
	{"lts", domain.CategoryVolume, true},
	{"l", domain.CategoryVolume, true},

	{"gramo", domain.CategoryPer100g, false},
	{"gram", domain.CategoryPer100g, false},
	{"gr", domain.CategoryPer100g, true},
	{"grs", domain.CategoryPer100g, true},
	{"g", domain.CategoryPer100g, true},

	{"unidad", domain.CategoryCount, false},
	{"unit", domain.CategoryCount, false},
	{"item", domain.CategoryCount, false},
	{"each", domain.CategoryCount, false},
	{"un", domain.CategoryCount, true},
	{"uni", domain.CategoryCount, true},
	{"u", domain.CategoryCount, true},
}

var (
	formatRegex     = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)\s*(.*)$`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Classify maps a unit label to its canonical category. A grams label only counts as
// per-100g when quantityHint is "100". Unknown labels return CategoryNone.
func Classify(label, quantityHint string) domain.UnitCategory {
	folded := FoldLabel(label)
	if folded == "" {
		return domain.CategoryNone
	}

	for _, entry := range unitVocabulary {
		if !matchesToken(folded, entry) {
			continue
		}
		if entry.category == domain.CategoryPer100g && strings.TrimSpace(quantityHint) != "100" {
			return domain.CategoryNone
		}
		return entry.category
	}

	return domain.CategoryNone
}

func matchesToken(folded string, entry vocabularyEntry) bool {
	if !strings.HasPrefix(folded, entry.token) {
		return false
	}
	if !entry.wordOnly || len(folded) == len(entry.token) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(folded[len(entry.token):])
	return !unicode.IsLetter(next) && !unicode.IsDigit(next)
}

// FoldLabel lowercases, strips accents and collapses whitespace
func FoldLabel(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, label)
	if err != nil {
		folded = label
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	folded = strings.Trim(folded, ".:")
	return whitespaceRegex.ReplaceAllString(folded, " ")
}

// ParseFormat splits a raw unit-format string such as "100 Gramos" into a quantity hint
// ("100") and a label ("Gramos"). Strings without a leading number get the hint "1".
func ParseFormat(raw string) (quantity, label string) {
	raw = strings.TrimSpace(raw)
	if m := formatRegex.FindStringSubmatch(raw); m != nil {
		return strings.Replace(m[1], ",", ".", 1), strings.TrimSpace(m[2])
	}
	return "1", raw
}

// Measure describes how a package quantity converts into a canonical unit
type Measure struct {
	Category domain.UnitCategory
	Factor   float64 // canonical units per label unit
	Grams    bool
}

var measureVocabulary = []struct {
	tokens  []string
	measure Measure
}{
	{[]string{"kg", "kgs", "kilo", "kilos", "kilogramo", "kilogramos", "kilogram", "kilograms"}, Measure{domain.CategoryWeight, 1, false}},
	{[]string{"g", "gr", "grs", "gramo", "gramos", "gram", "grams"}, Measure{domain.CategoryWeight, 0.001, true}},
	{[]string{"l", "lt", "lts", "litro", "litros", "liter", "liters", "litre", "litres"}, Measure{domain.CategoryVolume, 1, false}},
	{[]string{"ml", "cc", "mililitro", "mililitros", "milliliter", "milliliters"}, Measure{domain.CategoryVolume, 0.001, false}},
	{[]string{"m2", "mt2", "m²", "metro cuadrado", "metros cuadrados"}, Measure{domain.CategoryArea, 1, false}},
	{[]string{"u", "un", "uni", "unid", "unidad", "unidades", "unit", "units", "item", "items"}, Measure{domain.CategoryCount, 1, false}},
}

// MeasureOf resolves a package unit label ("500 g" has label "g") to its measure
func MeasureOf(label string) (Measure, bool) {
	folded := FoldLabel(label)
	for _, entry := range measureVocabulary {
		for _, token := range entry.tokens {
			if folded == token {
				return entry.measure, true
			}
		}
	}
	return Measure{}, false
}
