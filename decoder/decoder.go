// Package decoder turns raw uploaded bytes into a header and aligned records.
package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/tabquery/compression"
	"github.com/nao1215/tabquery/domain/model"
)

// DefaultMaxRows bounds the number of records a single file may produce.
const DefaultMaxRows = 1_000_000

// ctxCheckEvery is how many rows are decoded between context checks.
const ctxCheckEvery = 1024

// Options controls decoding.
type Options struct {
	// Delimiter for delimited text. Zero means detect from the first lines.
	Delimiter rune
	// MaxRows is the row ceiling. Zero means DefaultMaxRows.
	MaxRows int
	// MaxDecompressedBytes bounds inflated compressed input. Zero means unbounded.
	MaxDecompressedBytes int64
}

func (o Options) maxRows() int {
	if o.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return o.MaxRows
}

// Result is a decoded file.
type Result struct {
	Header      model.Header
	Records     []model.Record
	Skipped     int
	Delimiter   rune
	Compression model.CompressionType
}

// Columns infers the column types of the result.
func (r *Result) Columns() []model.Column {
	return model.InferColumnsFromRecords(r.Header, r.Records)
}

// Decode decodes raw bytes of the declared kind. Failures are *DecodeError or
// ErrEmptyDataset.
func Decode(ctx context.Context, raw []byte, kind model.SourceKind, opts Options) (*Result, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, newDecodeError(ReasonEmptyFile, nil)
	}

	ct := compression.Detect(raw)
	data, err := compression.Decompress(raw, opts.MaxDecompressedBytes)
	if err != nil {
		if errors.Is(err, compression.ErrTooLarge) {
			return nil, newDecodeError(ReasonTooLarge, err)
		}
		return nil, newDecodeError(ReasonUnreadableBinary, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newDecodeError(ReasonEmptyFile, nil)
	}

	var res *Result
	switch kind {
	case model.SourceDelimited:
		res, err = decodeDelimited(ctx, data, opts)
	case model.SourceSpreadsheet:
		res, err = decodeSpreadsheet(ctx, data, opts)
	case model.SourceParquet:
		res, err = decodeParquet(ctx, data, opts)
	default:
		return nil, newDecodeError(ReasonUnsupportedKind, fmt.Errorf("%q", kind))
	}
	if err != nil {
		return nil, err
	}
	res.Compression = ct

	if len(res.Records) == 0 {
		return nil, ErrEmptyDataset
	}
	return res, nil
}

// collector applies the shared row policy: normalize cells, align to the
// header width, drop blank rows and enforce the row ceiling.
type collector struct {
	ctx     context.Context
	width   int
	max     int
	records []model.Record
	skipped int
}

func newCollector(ctx context.Context, width int, opts Options) *collector {
	return &collector{ctx: ctx, width: width, max: opts.maxRows()}
}

func (c *collector) add(cells []string) error {
	rec := make(model.Record, c.width)
	for i := 0; i < c.width && i < len(cells); i++ {
		rec[i] = model.NormalizeCell(cells[i])
	}
	if rec.IsBlank() {
		c.skipped++
		return nil
	}
	if len(c.records) >= c.max {
		return newDecodeError(ReasonTooManyRows, fmt.Errorf("limit is %d", c.max))
	}
	c.records = append(c.records, rec)

	if len(c.records)%ctxCheckEvery == 0 {
		if err := c.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *collector) result(header model.Header) *Result {
	return &Result{Header: header, Records: c.records, Skipped: c.skipped}
}
