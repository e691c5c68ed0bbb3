package decoder

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/nao1215/tabquery/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDecode_Delimited(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		opts        Options
		wantHeader  model.Header
		wantRecords []model.Record
		wantSkipped int
	}{
		{
			name:        "simple csv",
			input:       "Name,Age\nAlice,30\nBob,25",
			wantHeader:  model.Header{"Name", "Age"},
			wantRecords: []model.Record{{"Alice", "30"}, {"Bob", "25"}},
		},
		{
			name:        "leading blank lines and blank rows are dropped",
			input:       "\n\n  Name , Age \n , \nAlice,30\n\n,,\nBob,25\n",
			wantHeader:  model.Header{"Name", "Age"},
			wantRecords: []model.Record{{"Alice", "30"}, {"Bob", "25"}},
			wantSkipped: 2,
		},
		{
			name:        "cells are trimmed and whitespace collapsed",
			input:       "a,b\n  hello   world ,\t 1 \n",
			wantHeader:  model.Header{"a", "b"},
			wantRecords: []model.Record{{"hello world", "1"}},
		},
		{
			name:        "short rows padded and long rows truncated",
			input:       "a,b,c\n1\n1,2,3,4\n",
			wantHeader:  model.Header{"a", "b", "c"},
			wantRecords: []model.Record{{"1", "", ""}, {"1", "2", "3"}},
		},
		{
			name:        "empty and duplicate headers get placeholders",
			input:       "id,,id\n1,2,3\n",
			wantHeader:  model.Header{"id", "Column_2", "Column_3"},
			wantRecords: []model.Record{{"1", "2", "3"}},
		},
		{
			name:        "semicolon detected",
			input:       "a;b\n1;2\n3;4\n",
			wantHeader:  model.Header{"a", "b"},
			wantRecords: []model.Record{{"1", "2"}, {"3", "4"}},
		},
		{
			name:        "explicit tab delimiter",
			input:       "a\tb\n1\t2\n",
			opts:        Options{Delimiter: '\t'},
			wantHeader:  model.Header{"a", "b"},
			wantRecords: []model.Record{{"1", "2"}},
		},
		{
			name:        "quoted delimiter and BOM",
			input:       "\xEF\xBB\xBFcity,note\n\"Paris, FR\",\"a \"\"quote\"\"\"\n",
			wantHeader:  model.Header{"city", "note"},
			wantRecords: []model.Record{{"Paris, FR", `a "quote"`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := Decode(context.Background(), []byte(tt.input), model.SourceDelimited, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHeader, res.Header)
			assert.Equal(t, tt.wantRecords, res.Records)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      []byte
		kind       model.SourceKind
		opts       Options
		wantReason Reason
		wantEmpty  bool
	}{
		{name: "empty file", input: nil, kind: model.SourceDelimited, wantReason: ReasonEmptyFile},
		{name: "whitespace only", input: []byte(" \n\t\n"), kind: model.SourceDelimited, wantReason: ReasonEmptyFile},
		{name: "only blank cells", input: []byte(",,\n,,\n"), kind: model.SourceDelimited, wantReason: ReasonNoHeader},
		{name: "header only", input: []byte("a,b\n"), kind: model.SourceDelimited, wantEmpty: true},
		{name: "header and blank rows", input: []byte("a,b\n,\n , \n"), kind: model.SourceDelimited, wantEmpty: true},
		{name: "binary as csv", input: []byte("PK\x03\x04\x00\x00garbage"), kind: model.SourceDelimited, wantReason: ReasonUnreadableBinary},
		{name: "garbage as spreadsheet", input: []byte("not a zip"), kind: model.SourceSpreadsheet, wantReason: ReasonUnreadableBinary},
		{name: "garbage as parquet", input: []byte("not parquet"), kind: model.SourceParquet, wantReason: ReasonUnreadableBinary},
		{name: "unknown kind", input: []byte("a\n1\n"), kind: "pdf", wantReason: ReasonUnsupportedKind},
		{name: "row ceiling", input: []byte("a\n1\n2\n3\n"), kind: model.SourceDelimited, opts: Options{MaxRows: 2}, wantReason: ReasonTooManyRows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(context.Background(), tt.input, tt.kind, tt.opts)
			require.Error(t, err)
			if tt.wantEmpty {
				assert.ErrorIs(t, err, ErrEmptyDataset)
				return
			}
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, tt.wantReason, decErr.Reason)
		})
	}
}

func TestDecode_Compressed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("Name,Age\nAlice,30\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	res, err := Decode(context.Background(), buf.Bytes(), model.SourceDelimited, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.CompressionGZ, res.Compression)
	assert.Equal(t, []model.Record{{"Alice", "30"}}, res.Records)

	_, err = Decode(context.Background(), buf.Bytes(), model.SourceDelimited, Options{MaxDecompressedBytes: 4})
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, ReasonTooLarge, decErr.Reason)
}

func TestDecode_Spreadsheet(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Name", "", "Score"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Alice", "x"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"  "}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]any{"Bob", "y", 7}))
	_, err := f.NewSheet("Ignored")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Ignored", "A1", &[]any{"other"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := Decode(context.Background(), buf.Bytes(), model.SourceSpreadsheet, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.Header{"Name", "Column_2", "Score"}, res.Header)
	assert.Equal(t, []model.Record{{"Alice", "x", ""}, {"Bob", "y", "7"}}, res.Records)
	assert.Equal(t, 1, res.Skipped, "the blank row 4 is dropped")
}

func TestDecode_SpreadsheetReadsStoredNumbers(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Item", "Price"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Desk", 1234.5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Lamp", 25}))
	style, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheet, "B2", "B3", style))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := Decode(context.Background(), buf.Bytes(), model.SourceSpreadsheet, Options{})
	require.NoError(t, err)
	assert.Equal(t, []model.Record{{"Desk", "1234.5"}, {"Lamp", "25"}}, res.Records)
	assert.Equal(t, model.ColumnTypeNumeric, res.Columns()[1].Type)
}

func TestDecode_Parquet(t *testing.T) {
	t.Parallel()

	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "active", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"Alice", "Bob"}, nil)
	b.Field(1).(*array.Float64Builder).AppendValues([]float64{1.5, 0}, []bool{true, false})
	b.Field(2).(*array.BooleanBuilder).AppendValues([]bool{true, false}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, pqarrow.WriteTable(tbl, &buf, 1024, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()))

	res, err := Decode(context.Background(), buf.Bytes(), model.SourceParquet, Options{})
	require.NoError(t, err)
	assert.Equal(t, model.Header{"name", "score", "active"}, res.Header)
	require.Len(t, res.Records, 2)
	assert.Equal(t, model.Record{"Alice", "1.5", "1"}, res.Records[0])
	assert.Equal(t, model.Record{"Bob", "", "0"}, res.Records[1])
}

func TestDecode_Cancelled(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("n\n")
	for i := range 5000 {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Decode(ctx, []byte(sb.String()), model.SourceDelimited, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  rune
	}{
		{input: "a,b,c\n1,2,3", want: ','},
		{input: "a;b;c\n1;2;3", want: ';'},
		{input: "a\tb\n1\t2", want: '\t'},
		{input: "a|b\n1|2", want: '|'},
		{input: "single\nvalue", want: ','},
		{input: "a;b,c\n1;2,3\n4;5,6", want: ','},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectDelimiter([]byte(tt.input)), "input %q", tt.input)
	}
}

func TestCache(t *testing.T) {
	t.Parallel()

	c := NewCache(Options{}, 2)
	raw := []byte("a\n1\n")

	first, hit, err := c.Decode(context.Background(), raw, model.SourceDelimited)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.Decode(context.Background(), raw, model.SourceDelimited)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)

	for i := range 3 {
		_, _, err := c.Decode(context.Background(), []byte(fmt.Sprintf("a\n%d\n", i+10)), model.SourceDelimited)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.size(), "oldest entries are evicted")

	_, _, err = c.Decode(context.Background(), []byte("a\n"), model.SourceDelimited)
	assert.ErrorIs(t, err, ErrEmptyDataset)
	assert.Equal(t, 2, c.size(), "failures are not cached")
}

func TestCache_ConcurrentDecode(t *testing.T) {
	t.Parallel()

	c := NewCache(Options{}, 4)
	raw := []byte("x,y\n1,2\n3,4\n")

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, _, err := c.Decode(context.Background(), raw, model.SourceDelimited)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Len(t, res.Records, 2)
	}
	assert.Equal(t, 1, c.size())
}
