package decoder

import (
	"bytes"
	"context"
	"errors"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	pqfile "github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/nao1215/tabquery/domain/model"
)

// decodeParquet reads every row group of a Parquet file and renders each
// value as text so the shared inference and load path applies.
func decodeParquet(ctx context.Context, data []byte, opts Options) (*Result, error) {
	pqReader, err := pqfile.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, newDecodeError(ReasonUnreadableBinary, err)
	}
	defer func() {
		_ = pqReader.Close()
	}()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return nil, newDecodeError(ReasonUnreadableBinary, err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, newDecodeError(ReasonUnreadableBinary, err)
	}
	defer table.Release()

	schema := table.Schema()
	if schema.NumFields() == 0 {
		return nil, newDecodeError(ReasonNoHeader, errors.New("parquet schema has no fields"))
	}
	names := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		names[i] = field.Name
	}
	header := model.NormalizeHeader(names)
	c := newCollector(ctx, len(header), opts)

	tableReader := array.NewTableReader(table, 0)
	defer tableReader.Release()

	for tableReader.Next() {
		batch := tableReader.Record()
		for i := range int(batch.NumRows()) {
			cells := make([]string, batch.NumCols())
			for j, col := range batch.Columns() {
				cells[j] = arrowValueString(col, i)
			}
			if err := c.add(cells); err != nil {
				return nil, err
			}
		}
	}
	if err := tableReader.Err(); err != nil {
		return nil, newDecodeError(ReasonUnreadableBinary, err)
	}
	return c.result(header), nil
}

// arrowValueString renders one cell. Nulls become "" and booleans 1 or 0.
func arrowValueString(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return ""
	}
	if b, ok := col.(*array.Boolean); ok {
		if b.Value(i) {
			return "1"
		}
		return "0"
	}
	return col.ValueStr(i)
}
