// Package commands implements the truecost command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/truecost/backend/config"
	"github.com/truecost/backend/internal/observability"
)

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configFile string
	verbose    bool
	noColor    bool
	json       bool
	yaml       bool
}

func (o *globalOptions) format() outputFormat {
	switch {
	case o.json:
		return formatJSON
	case o.yaml:
		return formatYAML
	default:
		return formatTable
	}
}

// loadConfig reads configuration and builds a console logger on stderr
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      cmd.ErrOrStderr(),
		ServiceName: "truecost-cli",
	})
	return cfg, logger, nil
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "truecost",
		Short: "TrueCost - compare supermarket products by their real unit price",
		Long: `TrueCost retrieves every product of a supermarket category page, normalizes
each one to a true price per kilogram, liter, 100 g, square meter or item
(promotions applied), and orders listings by that price.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.json && opts.yaml {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			if opts.noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON")
	root.PersistentFlags().BoolVar(&opts.yaml, "yaml", false, "print YAML")

	root.AddCommand(
		newFetchCommand(opts),
		newSortCommand(opts),
		newParsePriceCommand(opts),
		newClassifyCommand(opts),
	)
	return root
}

// Execute runs the root command; an interrupt cancels any retrieval in flight.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCommand()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	return root.ExecuteContext(ctx)
}
