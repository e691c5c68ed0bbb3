// Package export writes query results as CSV, TSV, LTSV, JSON or XLSX,
// optionally compressed.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/tabquery/compression"
	"github.com/nao1215/tabquery/domain/model"
)

// ErrNilResult is returned when there is nothing to export.
var ErrNilResult = errors.New("export: nil result set")

// Options selects the output format and compression.
type Options struct {
	Format      model.OutputFormat
	Compression model.CompressionType
}

// NewOptions returns CSV without compression.
func NewOptions() Options {
	return Options{Format: model.OutputFormatCSV, Compression: model.CompressionNone}
}

// WithFormat sets the output format
func (o Options) WithFormat(format model.OutputFormat) Options {
	o.Format = format
	return o
}

// WithCompression sets the compression type
func (o Options) WithCompression(ct model.CompressionType) Options {
	o.Compression = ct
	return o
}

// FileExtension returns the complete extension including compression.
func (o Options) FileExtension() string {
	return o.Format.Extension() + o.Compression.Extension()
}

// Write encodes rs to w.
func Write(w io.Writer, rs *model.ResultSet, opts Options) (err error) {
	if err := opts.check(rs); err != nil {
		return err
	}
	cw, closeFn, err := compression.NewHandler(opts.Compression).CreateWriter(w)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close compressor: %w", cerr))
		}
	}()
	return encode(cw, rs, opts.Format)
}

// WriteFile writes rs to path. The extension is appended when path has none.
// A partly written file is removed on failure.
func WriteFile(path string, rs *model.ResultSet, opts Options) (written string, err error) {
	if err := opts.check(rs); err != nil {
		return "", err
	}
	if filepath.Ext(path) == "" {
		path += opts.FileExtension()
	}
	path = filepath.Clean(path)

	w, cleanup, err := compression.CreateWriterForFile(path, opts.Compression)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if err != nil {
			if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				err = errors.Join(err, rerr)
			}
			written = ""
		}
	}()
	if err := encode(w, rs, opts.Format); err != nil {
		return "", err
	}
	return path, nil
}

func (o Options) check(rs *model.ResultSet) error {
	if rs == nil {
		return ErrNilResult
	}
	if o.Format == model.OutputFormatXLSX && o.Compression != model.CompressionNone {
		return errors.New("export: xlsx output cannot be compressed")
	}
	return nil
}

func encode(w io.Writer, rs *model.ResultSet, format model.OutputFormat) error {
	switch format {
	case model.OutputFormatCSV:
		return writeDelimited(w, rs, ',')
	case model.OutputFormatTSV:
		return writeDelimited(w, rs, '\t')
	case model.OutputFormatLTSV:
		return writeLTSV(w, rs)
	case model.OutputFormatJSON:
		return writeJSON(w, rs)
	case model.OutputFormatXLSX:
		return writeXLSX(w, rs)
	default:
		return fmt.Errorf("export: unsupported format %v", format)
	}
}

// Cell renders a result value the way it is written to text formats.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func writeDelimited(w io.Writer, rs *model.ResultSet, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(rs.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i, col := range rs.Columns {
			record[i] = Cell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ltsvEscaper keeps labels and values free of the tab and newline separators.
var ltsvEscaper = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func writeLTSV(w io.Writer, rs *model.ResultSet) error {
	var sb strings.Builder
	for _, row := range rs.Rows {
		sb.Reset()
		for i, col := range rs.Columns {
			if i > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(ltsvEscaper.Replace(strings.ReplaceAll(col, ":", "_")))
			sb.WriteByte(':')
			sb.WriteString(ltsvEscaper.Replace(Cell(row[col])))
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// writeJSON emits an array of objects with keys in column order.
func writeJSON(w io.Writer, rs *model.ResultSet) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, row := range rs.Rows {
		var sb strings.Builder
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("\n  {")
		for j, col := range rs.Columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			key, err := json.Marshal(col)
			if err != nil {
				return err
			}
			val, err := json.Marshal(row[col])
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", col, err)
			}
			sb.Write(key)
			sb.WriteString(": ")
			sb.Write(val)
		}
		sb.WriteByte('}')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	tail := "]\n"
	if len(rs.Rows) > 0 {
		tail = "\n]\n"
	}
	_, err := io.WriteString(w, tail)
	return err
}

func writeXLSX(w io.Writer, rs *model.ResultSet) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for r, row := range rs.Rows {
		cells := make([]interface{}, len(rs.Columns))
		for i, c := range rs.Columns {
			cells[i] = row[c]
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
