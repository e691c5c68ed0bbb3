package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/tabquery"
	"github.com/nao1215/tabquery/domain/model"
)

func newIngestCommand() *cobra.Command {
	var name, kind, caller string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Materialize a file as a new dataset",
		Long: `Decode a CSV, TSV, XLSX or Parquet file (optionally gzip, bzip2, xz or
zstd compressed), infer column types from the first data row and store it
as a new dataset.`,
		Example: `  # Ingest a CSV file
  tabquery ingest people.csv

  # Ingest with a display name and an explicit kind
  tabquery ingest export.txt --name "Q3 export" --kind csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, func(p *tabquery.Pipeline, a *app) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				req := tabquery.IngestRequest{
					Name:     name,
					Filename: filepath.Base(args[0]),
					Data:     data,
					Caller:   caller,
				}
				if kind != "" {
					k, err := model.ParseSourceKind(kind)
					if err != nil {
						return err
					}
					req.Kind = k
				}

				res, err := p.Ingest(cmd.Context(), req)
				if err != nil {
					return err
				}
				if a.output == outputJSON {
					return renderJSON(cmd.OutOrStdout(), res)
				}

				w := cmd.OutOrStdout()
				d := res.Dataset
				_, _ = fmt.Fprintf(w, "Dataset %s (%s)\n", d.ID, d.Name)
				_, _ = fmt.Fprintf(w, "  rows: %d inserted, %d skipped, %d coerced\n", d.RowCount, res.Skipped, res.Coerced)
				_, _ = fmt.Fprintf(w, "  table: %s\n", d.TableName)
				return renderTable(w, d.ColumnNames(), res.Sample)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Dataset display name (default: file name)")
	cmd.Flags().StringVar(&kind, "kind", "", "Source kind (csv|xlsx|parquet); detected from the extension when empty")
	cmd.Flags().StringVar(&caller, "caller", "", "Caller identity stored with the dataset")
	return cmd
}
