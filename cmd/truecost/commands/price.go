package commands

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/pricing"
)

func newParsePriceCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse-price <text>...",
		Short: "Parse localized price texts such as \"$ 1.348,47\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type parsed struct {
				Text      string   `json:"text" yaml:"text"`
				Value     *float64 `json:"value" yaml:"value"`
				Formatted string   `json:"formatted" yaml:"formatted"`
			}

			results := make([]parsed, len(args))
			rows := make([][]string, len(args))
			highlight := make([]*color.Color, len(args))
			for i, text := range args {
				v := pricing.ParsePrice(text)
				results[i] = parsed{Text: text, Formatted: pricing.FormatPrice(v)}
				if pricing.Valid(v) {
					results[i].Value = &v
				} else {
					highlight[i] = unrankedColor
				}
				rows[i] = []string{text, results[i].Formatted}
			}

			if format := global.format(); format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, results)
			}
			return writeTable(cmd.OutOrStdout(), []string{"TEXT", "PRICE"}, rows, highlight)
		},
	}
}

func newClassifyCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <label> [quantity]",
		Short: "Map a unit label such as \"Kilogramo\" or \"100 gramos\" to its unit category",
		Long: `Map a unit label to its unit category. The quantity may be given as a second
argument or as a leading number of the label ("100 gramos").`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, label := pricing.ParseFormat(args[0])
			if len(args) == 2 {
				quantity = args[1]
			}
			category := pricing.Classify(label, quantity)

			result := struct {
				Label    string              `json:"label" yaml:"label"`
				Quantity string              `json:"quantity" yaml:"quantity"`
				Category domain.UnitCategory `json:"category" yaml:"category"`
			}{label, quantity, category}

			if format := global.format(); format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, result)
			}

			var highlight []*color.Color
			if category == domain.CategoryNone {
				highlight = []*color.Color{unrankedColor}
			}
			return writeTable(cmd.OutOrStdout(), []string{"LABEL", "QUANTITY", "CATEGORY"},
				[][]string{{label, quantity, string(category)}}, highlight)
		},
	}
}
