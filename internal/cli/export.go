package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/tabquery"
	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/export"
)

func newExportCommand() *cobra.Command {
	var input, out, format, compress string

	cmd := &cobra.Command{
		Use:   "export <dataset-id> [SQL]",
		Short: "Write a query result to a file",
		Long: `Run a query against a dataset and write the result as CSV, TSV, LTSV, JSON
or XLSX, optionally compressed. Without SQL the whole dataset is exported,
subject to the row cap.`,
		Example: `  tabquery export 6f1c... --out people --format xlsx
  tabquery export 6f1c... "SELECT * FROM data WHERE age > 30" --out adults.csv --compress zstd`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := model.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			c, err := model.ParseCompressionType(compress)
			if err != nil {
				return err
			}
			opts := export.NewOptions().WithFormat(f).WithCompression(c)

			sql := "SELECT * FROM data"
			if len(args) > 1 || input != "" {
				if sql, err = readSQL(args[1:], input); err != nil {
					return err
				}
			}

			return withPipeline(cmd, func(p *tabquery.Pipeline, _ *app) error {
				res, err := p.Query(cmd.Context(), tabquery.QueryRequest{DatasetID: args[0], SQL: sql})
				if err != nil {
					return err
				}
				if out == "" {
					return export.Write(cmd.OutOrStdout(), res.ResultSet(), opts)
				}
				written, err := export.WriteFile(out, res.ResultSet(), opts)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", res.RowCount, written)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringVar(&out, "out", "", "Output file; the extension is added when missing (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Output format (csv|tsv|ltsv|json|xlsx)")
	cmd.Flags().StringVar(&compress, "compress", "none", "Compression (none|gz|bz2|xz|zstd)")
	return cmd
}
