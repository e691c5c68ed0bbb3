package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/tabquery"
	"github.com/nao1215/tabquery/backend"
	"github.com/nao1215/tabquery/domain/model"
)

func newRunCommand() *cobra.Command {
	var input, kind string

	cmd := &cobra.Command{
		Use:   "run <file> [SQL]",
		Short: "Query a file once without storing it",
		Long: `Load a file into a throwaway in-memory engine, run one query against it
and discard the engine. The engine is chosen with --engine; when it cannot
start, a built-in interpreter answers simple queries instead.`,
		Example: `  tabquery run people.csv "SELECT COUNT(*) FROM data"
  tabquery run sales.xlsx.gz "SELECT region, amount FROM data ORDER BY amount DESC" --engine sqlite`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(args[1:], input)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			req := tabquery.SessionRequest{Data: data, Filename: filepath.Base(args[0]), SQL: sql}
			if kind != "" {
				if req.Kind, err = model.ParseSourceKind(kind); err != nil {
					return err
				}
			}

			a := getApp(cmd.Context())
			session, err := tabquery.NewBuilder().
				WithConfig(*a.cfg).
				WithLogger(a.logger).
				Session(cmd.Context())
			if err != nil {
				return err
			}
			res, err := session.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			if session.State() == backend.StateDegraded && a.output == outputTable {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Engine unavailable, answered by the fallback interpreter")
			}
			return renderQueryResult(cmd, a, res)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringVar(&kind, "kind", "", "Source kind (csv|xlsx|parquet); detected from the extension when empty")
	return cmd
}
