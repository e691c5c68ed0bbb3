package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/export"
)

// renderRows writes a result set in the selected output mode.
func renderRows(w io.Writer, rs *model.ResultSet, output string) error {
	switch output {
	case outputJSON:
		return export.Write(w, rs, export.NewOptions().WithFormat(model.OutputFormatJSON))
	case outputCSV:
		return export.Write(w, rs, export.NewOptions())
	default:
		return renderTable(w, rs.Columns, rs.Rows)
	}
}

func renderTable(w io.Writer, cols []string, rows []model.Row) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, r := range rows {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(r[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

// renderJSON writes any value as indented JSON.
func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return export.Cell(v)
}
