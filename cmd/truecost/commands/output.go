package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/pricing"
)

type outputFormat int

const (
	formatTable outputFormat = iota
	formatJSON
	formatYAML
)

var (
	discountColor = color.New(color.FgGreen)
	unrankedColor = color.New(color.FgHiBlack)
	headerColor   = color.New(color.Bold)
)

// writeStructured encodes v as JSON or YAML
func writeStructured(w io.Writer, format outputFormat, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported structured format %d", format)
	}
}

// writeTable aligns rows with tabwriter, then colors whole lines: highlight[i] picks
// the color of rows[i], nil for none.
func writeTable(w io.Writer, headers []string, rows [][]string, highlight []*color.Color) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			line = headerColor.Sprint(line)
		case i-1 < len(highlight) && highlight[i-1] != nil:
			line = highlight[i-1].Sprint(line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// writeProducts prints products in order, as a table or structured data
func writeProducts(w io.Writer, format outputFormat, products []*domain.Product) error {
	if format != formatTable {
		return writeStructured(w, format, products)
	}

	headers := []string{"#", "NAME", "PRICE", "UNIT PRICE", "PER", "DISCOUNT", "PROMOTIONS"}
	rows := make([][]string, 0, len(products))
	highlight := make([]*color.Color, 0, len(products))
	for i, p := range products {
		if p == nil {
			rows = append(rows, []string{strconv.Itoa(i + 1), "(unreadable)", "-", "-", "-", "-", ""})
			highlight = append(highlight, unrankedColor)
			continue
		}

		discount := "-"
		if p.HasDiscount() {
			discount = fmt.Sprintf("%.0f%%", (1-p.DiscountRatio)*100)
		}
		unitPrice := "-"
		if p.UnitCategory != domain.CategoryNone && p.AdjustedUnitPrice > 0 {
			unitPrice = pricing.FormatPrice(p.AdjustedUnitPrice)
		}

		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncate(p.Name, 48),
			pricing.FormatPrice(p.DisplayedPrice),
			unitPrice,
			string(p.UnitCategory),
			discount,
			strings.Join(p.PromotionLabels, "; "),
		})

		switch {
		case p.HasDiscount():
			highlight = append(highlight, discountColor)
		case unitPrice == "-":
			highlight = append(highlight, unrankedColor)
		default:
			highlight = append(highlight, nil)
		}
	}
	return writeTable(w, headers, rows, highlight)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
