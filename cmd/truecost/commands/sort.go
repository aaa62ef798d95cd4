package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/infrastructure/page"
	"github.com/truecost/backend/internal/usecase"
)

type sortOptions struct {
	category      string
	entrySelector string
	idAttr        string
	render        bool
}

func newSortCommand(global *globalOptions) *cobra.Command {
	opts := &sortOptions{}

	cmd := &cobra.Command{
		Use:   "sort <page.html>",
		Short: "Order the product cards of a saved listing page by true unit price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSort(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.category, "category", "", "unit category to sort by (required)")
	cmd.Flags().StringVar(&opts.entrySelector, "entry-selector", "", "CSS selector of one product card (default from config)")
	cmd.Flags().StringVar(&opts.idAttr, "id-attr", "", "attribute carrying the card id (default from config)")
	cmd.Flags().BoolVar(&opts.render, "render", false, "print the reordered card markup instead of a table")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func runSort(cmd *cobra.Command, global *globalOptions, opts *sortOptions, path string) error {
	cfg, logger, err := global.loadConfig(cmd)
	if err != nil {
		return err
	}

	category, ok := domain.ParseUnitCategory(opts.category)
	if !ok {
		return fmt.Errorf("unknown category %q", opts.category)
	}

	sel := cfg.Selectors
	if opts.entrySelector != "" {
		sel.Entry = opts.entrySelector
	}
	if opts.idAttr != "" {
		sel.IDAttr = opts.idAttr
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	list, err := page.LoadDocument(f, sel)
	if err != nil {
		return err
	}
	if len(list.Entries()) == 0 {
		return fmt.Errorf("no entries match %q in %s", sel.Entry, path)
	}

	engine := usecase.NewSortEngine(list, usecase.SortEngineConfig{
		DebounceWindow: cfg.Sort.DebounceWindow,
		SettleDelay:    cfg.Sort.SettleDelay,
		Selectors:      sel,
	}, logger)
	defer engine.Close()

	products, err := engine.SortBy(category)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case opts.render:
		_, err = fmt.Fprint(out, list.Render())
		return err
	case global.format() != formatTable:
		type sortedEntry struct {
			ID      string          `json:"id" yaml:"id"`
			Product *domain.Product `json:"product" yaml:"product"`
		}
		ids := list.IDs()
		entries := make([]sortedEntry, len(ids))
		for i, id := range ids {
			entries[i] = sortedEntry{ID: id, Product: products[i]}
		}
		return writeStructured(out, global.format(), entries)
	default:
		return writeProducts(out, formatTable, products)
	}
}
