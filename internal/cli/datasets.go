package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/tabquery"
	"github.com/nao1215/tabquery/domain/model"
)

func newDatasetsCommand() *cobra.Command {
	var opts tabquery.ListOptions

	cmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ls"},
		Short:   "List stored datasets, newest first",
		Example: `  tabquery datasets --search sales --limit 10`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd, func(p *tabquery.Pipeline, a *app) error {
				list, total, err := p.Datasets(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if a.output == outputJSON {
					return renderJSON(cmd.OutOrStdout(), map[string]any{"datasets": list, "total": total})
				}

				cols := []string{"id", "name", "filename", "rows", "columns", "created_at"}
				rows := make([]model.Row, len(list))
				for i, d := range list {
					rows[i] = model.Row{
						"id":         d.ID,
						"name":       d.Name,
						"filename":   d.Filename,
						"rows":       d.RowCount,
						"columns":    int64(len(d.Columns)),
						"created_at": d.CreatedAt.Format(time.RFC3339),
					}
				}
				if err := renderRows(cmd.OutOrStdout(), &model.ResultSet{Columns: cols, Rows: rows}, a.output); err != nil {
					return err
				}
				if a.output == outputTable && total > len(list) {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d datasets shown\n", len(list), total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "Match name or filename")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	return cmd
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <dataset-id>",
		Short: "Show the columns of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, func(p *tabquery.Pipeline, a *app) error {
				cols, err := p.Schema(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.output == outputJSON {
					return renderJSON(cmd.OutOrStdout(), cols)
				}
				rows := make([]model.Row, len(cols))
				for i, c := range cols {
					rows[i] = model.Row{"position": int64(i + 1), "name": c.Name, "type": c.Type.String()}
				}
				return renderRows(cmd.OutOrStdout(), &model.ResultSet{Columns: []string{"position", "name", "type"}, Rows: rows}, a.output)
			})
		},
	}
}

func newSampleCommand() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "sample <dataset-id>",
		Short: "Show the first rows of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, func(p *tabquery.Pipeline, a *app) error {
				rs, err := p.Sample(cmd.Context(), args[0], n)
				if err != nil {
					return err
				}
				return renderRows(cmd.OutOrStdout(), rs, a.output)
			})
		},
	}

	cmd.Flags().IntVarP(&n, "rows", "n", tabquery.SampleSize, "Number of rows")
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <dataset-id>",
		Short: "Show non-empty and distinct counts per column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, func(p *tabquery.Pipeline, a *app) error {
				stats, err := p.Stats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.output == outputJSON {
					return renderJSON(cmd.OutOrStdout(), stats)
				}
				cols := []string{"name", "type", "non_empty", "distinct", "min", "max"}
				rows := make([]model.Row, len(stats))
				for i, s := range stats {
					rows[i] = model.Row{
						"name":      s.Name,
						"type":      s.Type.String(),
						"non_empty": s.NonEmpty,
						"distinct":  s.Distinct,
						"min":       s.Min,
						"max":       s.Max,
					}
				}
				return renderRows(cmd.OutOrStdout(), &model.ResultSet{Columns: cols, Rows: rows}, a.output)
			})
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <dataset-id>...",
		Aliases: []string{"rm"},
		Short:   "Delete datasets with their tables, history and stored uploads",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, func(p *tabquery.Pipeline, _ *app) error {
				for _, id := range args {
					if err := p.Delete(cmd.Context(), id); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
}
