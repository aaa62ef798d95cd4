package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/infrastructure/cache"
	"github.com/truecost/backend/internal/infrastructure/catalog"
	"github.com/truecost/backend/internal/infrastructure/timeline"
	"github.com/truecost/backend/internal/usecase"
)

type fetchOptions struct {
	harPath   string
	category  string
	batch     int
	parallel  int
	wait      time.Duration
	noCache   bool
	noBar     bool
	rankedOut bool
}

func newFetchCommand(global *globalOptions) *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch <page-url>",
		Short: "Retrieve every product of a category page",
		Long: `Retrieve every product of a category page. Catalog endpoints are discovered in
the network activity recorded in a HAR file; without one the page URL itself is
queried as a dialect A listing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.harPath, "har", "", "HAR file with the page's network activity")
	cmd.Flags().StringVar(&opts.category, "category", "", "rank by unit price in this category (weight, volume, per100g, area, count)")
	cmd.Flags().IntVar(&opts.batch, "batch", 0, "dialect A page size (default from config)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "requests per concurrent group (default from config)")
	cmd.Flags().DurationVar(&opts.wait, "wait", 0, "how long to wait for a dialect B request (default from config)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "ignore cached results")
	cmd.Flags().BoolVar(&opts.noBar, "no-progress", false, "hide the progress bar")
	cmd.Flags().BoolVar(&opts.rankedOut, "ranked-only", false, "print only the ranked list")
	return cmd
}

func runFetch(cmd *cobra.Command, global *globalOptions, opts *fetchOptions, pageURL string) error {
	cfg, logger, err := global.loadConfig(cmd)
	if err != nil {
		return err
	}

	var category domain.UnitCategory
	if opts.category != "" {
		c, ok := domain.ParseUnitCategory(opts.category)
		if !ok {
			return fmt.Errorf("unknown category %q", opts.category)
		}
		category = c
	}

	var provider domain.TimelineProvider
	if opts.harPath != "" {
		if _, err := os.Stat(opts.harPath); err != nil {
			return fmt.Errorf("har file: %w", err)
		}
		provider = timeline.NewHARTimeline(opts.harPath)
	}

	ctx := cmd.Context()

	store, err := cache.New(ctx, cache.Options{Type: cfg.Cache.Type, RedisURL: cfg.Cache.RedisURL})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer store.Close()

	client := catalog.NewClient(catalog.ClientConfig{
		UserAgent:         cfg.Catalog.UserAgent,
		Timeout:           cfg.Catalog.Timeout,
		MaxAttempts:       cfg.Catalog.MaxAttempts,
		RequestsPerSecond: cfg.RateLimit.CatalogRPS,
		Burst:             cfg.RateLimit.CatalogBurst,
	}, logger)
	client.SetDebug(global.verbose)

	retrievalConfig := usecase.RetrievalConfig{
		DialectAPageSize:     firstPositive(opts.batch, cfg.Catalog.DialectAPageSize),
		DialectAParallelism:  firstPositive(opts.parallel, cfg.Catalog.DialectAParallelism),
		DialectBPageSize:     cfg.Catalog.DialectBPageSize,
		DialectBParallelism:  firstPositive(opts.parallel, cfg.Catalog.DialectBParallelism),
		DialectBWaitTimeout:  cfg.Catalog.DialectBWaitTimeout,
		DialectBPollInterval: cfg.Catalog.DialectBPollInterval,
		TaxMultiplier:        cfg.Catalog.TaxMultiplier,
		CacheTTL:             cfg.Cache.TTL,
		Discovery: usecase.DiscoveryConfig{
			ListingMarker:       cfg.Discovery.ListingMarker,
			QueryMarkers:        cfg.Discovery.QueryMarkers,
			DialectBHostMarker:  cfg.Discovery.DialectBHostMarker,
			DialectBPathMarkers: cfg.Discovery.DialectBPathMarkers,
		},
	}
	if opts.wait > 0 {
		retrievalConfig.DialectBWaitTimeout = opts.wait
	}
	service := usecase.NewRetrievalService(client, store, retrievalConfig, logger)

	var progress usecase.ProgressFunc
	if !opts.noBar {
		bar := newProgressBar(cmd)
		defer bar.Finish()
		progress = func(loaded, total int) {
			if total > 0 {
				bar.ChangeMax(total)
			}
			_ = bar.Set(loaded)
		}
	}

	result, err := service.Retrieve(ctx, usecase.RetrieveRequest{
		PageURL:   pageURL,
		Timeline:  provider,
		Category:  category,
		SkipCache: opts.noCache,
	}, progress)
	if err != nil {
		return err
	}

	format := global.format()
	out := cmd.OutOrStdout()
	if format != formatTable {
		if opts.rankedOut && result.Ranked != nil {
			return writeStructured(out, format, result.Ranked)
		}
		return writeStructured(out, format, result)
	}

	products := result.Products
	if result.Ranked != nil {
		products = result.Ranked
	}
	if err := writeProducts(out, format, products); err != nil {
		return err
	}

	source := "live"
	if result.FromCache {
		source = "cache"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d products (%d reported, %d skipped) via %s [%s]\n",
		len(result.Products), result.Total, result.Skipped, result.Dialect, source)
	return nil
}

func newProgressBar(cmd *cobra.Command) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("loading products"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("products"),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
