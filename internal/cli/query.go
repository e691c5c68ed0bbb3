package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/tabquery"
	"github.com/nao1215/tabquery/domain/model"
)

// readSQL returns the query from args or, when input is set, from a file.
func readSQL(args []string, input string) (string, error) {
	if input != "" {
		b, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		return string(b), nil
	}
	if len(args) == 0 {
		return "", errors.New("no query given")
	}
	return strings.Join(args, " "), nil
}

func newQueryCommand() *cobra.Command {
	var input, caller string

	cmd := &cobra.Command{
		Use:   "query <dataset-id> [SQL]",
		Short: "Run a read-only query against a dataset",
		Long: `Run a SELECT query against a stored dataset. Refer to the dataset as the
table "data"; it is replaced with the real table name and a row cap is
appended when the query has no LIMIT. Every attempt is recorded in the
dataset's history.`,
		Example: `  tabquery query 6f1c... "SELECT name, age FROM data WHERE age > 30"

  # Read the query from a file and print JSON
  tabquery query 6f1c... --input report.sql -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(args[1:], input)
			if err != nil {
				return err
			}
			return withPipeline(cmd, func(p *tabquery.Pipeline, a *app) error {
				res, err := p.Query(cmd.Context(), tabquery.QueryRequest{
					DatasetID: args[0],
					SQL:       sql,
					Caller:    caller,
				})
				if err != nil {
					return err
				}
				return renderQueryResult(cmd, a, res)
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringVar(&caller, "caller", "", "Caller identity stored in the history")
	return cmd
}

func renderQueryResult(cmd *cobra.Command, a *app, res *tabquery.QueryResult) error {
	if a.output == outputJSON {
		return renderJSON(cmd.OutOrStdout(), res)
	}
	if err := renderRows(cmd.OutOrStdout(), res.ResultSet(), a.output); err != nil {
		return err
	}
	if a.output == outputTable {
		if res.Truncated {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Result truncated to %d rows\n", res.RowCount)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s on %s\n", res.Duration.Round(time.Microsecond), res.Engine)
	}
	return nil
}

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <dataset-id>",
		Short: "Show the newest query attempts for a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, func(p *tabquery.Pipeline, a *app) error {
				if limit == 0 {
					limit = a.cfg.Query.HistoryLimit
				}
				records, err := p.History(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if a.output == outputJSON {
					return renderJSON(cmd.OutOrStdout(), records)
				}

				cols := []string{"created_at", "status", "duration", "error_class", "query"}
				rows := make([]model.Row, len(records))
				for i, r := range records {
					rows[i] = model.Row{
						"created_at":  r.CreatedAt.Format(time.RFC3339),
						"status":      string(r.Status),
						"duration":    r.Duration.String(),
						"error_class": r.ErrorClass,
						"query":       r.Query,
					}
				}
				return renderRows(cmd.OutOrStdout(), &model.ResultSet{Columns: cols, Rows: rows}, a.output)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of records (default: query.history_limit)")
	return cmd
}
