// Package cli provides the command-line interface for tabquery.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/tabquery"
	"github.com/nao1215/tabquery/config"
	"github.com/nao1215/tabquery/observability"
)

// Version information (set at build time).
var Version = "0.1.0"

// Output modes selected with --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputCSV   = "csv"
)

// appKey is used to store the loaded application state in the command context.
type appKey struct{}

// app is what every subcommand needs: configuration, a logger and the
// chosen output mode.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	output string
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	var output string

	rootCmd := &cobra.Command{
		Use:   "tabquery",
		Short: "Query uploaded CSV, TSV, XLSX and Parquet files with read-only SQL",
		Long: `tabquery turns tabular files into SQL tables and runs validated,
read-only SELECT queries against them.

Queries refer to a dataset through the placeholder table "data":

  tabquery query <dataset-id> "SELECT name FROM data WHERE age > 30"`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			switch output {
			case outputTable, outputJSON, outputCSV:
			default:
				return fmt.Errorf("unknown output format %q (want table, json or csv)", output)
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger := observability.NewLogger(cfg.Log, cmd.ErrOrStderr())
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
				cfg:    cfg,
				logger: logger,
				output: output,
			}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./"+config.DefaultFile+")")
	flags.StringVarP(&output, "output", "o", outputTable, "Output format (table|json|csv)")
	flags.String("database", "", "Path to the SQLite database holding datasets")
	flags.String("upload-dir", "", "Directory to keep raw uploads in (empty disables)")
	flags.Int64("max-file-bytes", 0, "Largest accepted upload in bytes")
	flags.String("delimiter", "", `Field delimiter for delimited text (empty auto-detects, "\t" for tab)`)
	flags.Duration("timeout", 0, "Query timeout")
	flags.Int("max-rows", 0, "Maximum rows returned by a query")
	flags.Bool("strict", true, "Require queries to parse as a single SELECT")
	flags.String("engine", "", "Engine for one-off runs (duckdb|sqlite|fallback)")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{outputTable, outputJSON, outputCSV}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("engine", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{config.EngineDuckDB, config.EngineSQLite, config.EngineFallback}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newIngestCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newDatasetsCommand())
	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newSampleCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newExportCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// getApp retrieves the application state from the command context.
func getApp(ctx context.Context) *app {
	if a, ok := ctx.Value(appKey{}).(*app); ok {
		return a
	}
	cfg := config.Default()
	return &app{cfg: &cfg, logger: observability.OrDiscard(nil), output: outputTable}
}

// openPipeline opens the persistent pipeline for a command. The caller must
// close it.
func openPipeline(cmd *cobra.Command) (*tabquery.Pipeline, *app, error) {
	a := getApp(cmd.Context())
	p, err := tabquery.NewBuilder().
		WithConfig(*a.cfg).
		WithLogger(a.logger).
		Open(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	return p, a, nil
}

// withPipeline opens the pipeline, runs fn and closes it.
func withPipeline(cmd *cobra.Command, fn func(p *tabquery.Pipeline, a *app) error) (err error) {
	p, a, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(p, a)
}
