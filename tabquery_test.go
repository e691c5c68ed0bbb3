package tabquery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nao1215/tabquery/decoder"
	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/query"
)

const peopleCSV = "Name,Age\nAnn,30\nBob,25\n"

func openPipeline(t *testing.T, configure ...func(*Builder)) *Pipeline {
	t.Helper()

	dir := t.TempDir()
	b := NewBuilder().
		WithDatabasePath(filepath.Join(dir, "tabquery.db")).
		WithUploadDir(filepath.Join(dir, "uploads"))
	for _, fn := range configure {
		fn(b)
	}
	p, err := b.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func ingest(t *testing.T, p *Pipeline, filename, data string) *model.Dataset {
	t.Helper()

	res, err := p.Ingest(context.Background(), IngestRequest{Filename: filename, Data: []byte(data)})
	require.NoError(t, err)
	return res.Dataset
}

func TestPipeline_IngestAndQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)

	res, err := p.Ingest(ctx, IngestRequest{Filename: "people.csv", Data: []byte(peopleCSV), Caller: "alice"})
	require.NoError(t, err)

	d := res.Dataset
	assert.Equal(t, "people", d.Name)
	assert.Equal(t, "people.csv", d.Filename)
	assert.Equal(t, int64(2), d.RowCount)
	assert.Equal(t, "alice", d.Caller)
	assert.True(t, strings.HasPrefix(d.TableName, model.TablePrefix))
	assert.Equal(t, []model.Column{
		{Name: "Name", Type: model.ColumnTypeText},
		{Name: "Age", Type: model.ColumnTypeNumeric},
	}, d.Columns)
	assert.Equal(t, 2, res.Attempted)
	assert.Len(t, res.Sample, 2)
	assert.FileExists(t, d.FilePath)

	qr, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: "SELECT Name FROM data WHERE Age > 26"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, qr.Columns)
	assert.Equal(t, []model.Row{{"Name": "Ann"}}, qr.Rows)
	assert.Equal(t, 1, qr.RowCount)
	assert.False(t, qr.Truncated)
	assert.Equal(t, "sqlite", qr.Engine)
	assert.Equal(t, `SELECT Name FROM "`+d.TableName+`" WHERE Age > 26 LIMIT 10000`, qr.ExecutedSQL)
	assert.GreaterOrEqual(t, qr.Duration, time.Duration(0))
}

func TestPipeline_RowCountExcludesBlankRows(t *testing.T) {
	t.Parallel()

	p := openPipeline(t)
	d := ingest(t, p, "blank.csv", "a,b\n1,2\n,\n  ,  \n3,4\n")
	assert.Equal(t, int64(2), d.RowCount)

	qr, err := p.Query(context.Background(), QueryRequest{DatasetID: d.ID, SQL: "SELECT COUNT(*) AS n FROM data"})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"n": int64(2)}}, qr.Rows)
}

func TestPipeline_RoundTrip(t *testing.T) {
	t.Parallel()

	p := openPipeline(t)
	d := ingest(t, p, "cities.csv", "city,population\nOslo,709000\nLima,9750000\nPerth,2141000\n")

	qr, err := p.Query(context.Background(), QueryRequest{DatasetID: d.ID, SQL: "SELECT * FROM data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "population"}, qr.Columns)
	assert.Equal(t, []model.Row{
		{"city": "Oslo", "population": float64(709000)},
		{"city": "Lima", "population": float64(9750000)},
		{"city": "Perth", "population": float64(2141000)},
	}, qr.Rows)
}

func TestPipeline_SpreadsheetFormattedNumbers(t *testing.T) {
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
	data, err := f.WriteToBuffer()
	require.NoError(t, err)

	ctx := context.Background()
	p := openPipeline(t)
	res, err := p.Ingest(ctx, IngestRequest{Filename: "prices.xlsx", Data: data.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, []model.Column{
		{Name: "Item", Type: model.ColumnTypeText},
		{Name: "Price", Type: model.ColumnTypeNumeric},
	}, res.Dataset.Columns)

	qr, err := p.Query(ctx, QueryRequest{DatasetID: res.Dataset.ID, SQL: "SELECT SUM(Price) AS s FROM data"})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"s": 1259.5}}, qr.Rows)
}

func TestPipeline_QueryReadsOnlyItsDataset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)
	d := ingest(t, p, "people.csv", peopleCSV)
	other := ingest(t, p, "secret.csv", "token\nabc\n")

	for _, sql := range []string{
		"SELECT * FROM datasets",
		"SELECT query, caller FROM query_executions",
		"SELECT * FROM " + other.TableName,
		"SELECT * FROM data\x00 WHERE 1",
	} {
		qr, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: sql})
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected, sql)
		assert.Empty(t, qr.Rows, sql)
	}
}

func TestPipeline_QueryCapsRows(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("id,value\n")
	for i := range 50000 {
		fmt.Fprintf(&sb, "%d,v%d\n", i, i)
	}

	ctx := context.Background()
	p := openPipeline(t)
	d := ingest(t, p, "big.csv", sb.String())
	require.Equal(t, int64(50000), d.RowCount)

	tests := []struct {
		name          string
		sql           string
		wantTruncated bool
	}{
		{name: "no limit", sql: "SELECT * FROM data"},
		{name: "limit above the cap", sql: "SELECT * FROM data LIMIT 20000", wantTruncated: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			qr, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: tt.sql})
			require.NoError(t, err)
			assert.Equal(t, 10000, qr.RowCount)
			assert.Len(t, qr.Rows, 10000)
			assert.Equal(t, tt.wantTruncated, qr.Truncated)
		})
	}
}

func TestPipeline_RejectsQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)
	d := ingest(t, p, "people.csv", peopleCSV)

	tests := []struct {
		name     string
		sql      string
		wantRule query.Rule
	}{
		{name: "delete", sql: "DELETE FROM data", wantRule: query.RuleSelectOnly},
		{name: "update", sql: "UPDATE data SET Age = 1", wantRule: query.RuleSelectOnly},
		{name: "stacked drop", sql: "SELECT * FROM data; DROP TABLE data", wantRule: query.RuleDenylist},
		{name: "keyword inside identifier", sql: "SELECT updated_at FROM data", wantRule: query.RuleDenylist},
		{name: "comment", sql: "SELECT * FROM data -- x", wantRule: query.RuleComment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			qr, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: tt.sql})
			require.NotNil(t, qr)
			var rejected *RejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tt.wantRule, rejected.Rule)
			assert.Empty(t, qr.ExecutedSQL)
			assert.GreaterOrEqual(t, qr.Duration, time.Duration(0))
		})
	}
}

func TestPipeline_DropAttemptLeavesTableIntact(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)
	d := ingest(t, p, "people.csv", peopleCSV)

	_, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: "SELECT * FROM data; DROP TABLE data"})
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)

	qr, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: "SELECT * FROM data"})
	require.NoError(t, err)
	assert.Equal(t, 2, qr.RowCount)
}

func TestPipeline_BackendErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("column missing", func(t *testing.T) {
		t.Parallel()

		p := openPipeline(t)
		d := ingest(t, p, "people.csv", peopleCSV)

		qr, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: "SELECT nope FROM data"})
		require.NotNil(t, qr)
		var be *BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, query.ClassColumnMissing, be.Class)
		assert.Equal(t, "Column not found in dataset. Please check column names.", err.Error())
		assert.Equal(t, "sqlite", qr.Engine)
	})

	t.Run("table missing", func(t *testing.T) {
		t.Parallel()

		p := openPipeline(t)
		d := ingest(t, p, "people.csv", peopleCSV)
		require.NoError(t, p.backend.DropTable(ctx, d.TableName))

		_, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: "SELECT * FROM data"})
		var be *BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, query.ClassTableMissing, be.Class)
		assert.Equal(t, "Dataset table not found. Please re-upload the dataset.", be.Message)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		p := openPipeline(t, func(b *Builder) { b.WithQueryTimeout(time.Nanosecond) })
		d := ingest(t, p, "people.csv", peopleCSV)

		_, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: "SELECT * FROM data"})
		var be *BackendError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, query.ClassTimeout, be.Class)

		history, err := p.History(ctx, d.ID, 0)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, string(query.ClassTimeout), history[0].ErrorClass)
	})
}

func TestPipeline_UnknownDataset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)

	qr, err := p.Query(ctx, QueryRequest{DatasetID: "missing", SQL: "SELECT * FROM data"})
	require.NotNil(t, qr)
	require.ErrorIs(t, err, ErrDatasetNotFound)

	history, err := p.History(ctx, "missing", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.StatusError, history[0].Status)
	assert.Equal(t, "not_found", history[0].ErrorClass)
	assert.Equal(t, "missing", history[0].DatasetID)
}

func TestPipeline_OneRecordPerAttempt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)
	d := ingest(t, p, "people.csv", peopleCSV)

	attempts := []struct {
		sql       string
		wantClass string
	}{
		{sql: "SELECT * FROM data"},
		{sql: "DROP TABLE data", wantClass: "rejected"},
		{sql: "SELECT nope FROM data", wantClass: string(query.ClassColumnMissing)},
		{sql: "SELECT COUNT(*) FROM data"},
	}
	for _, a := range attempts {
		_, _ = p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: a.sql, Caller: "bob"})
	}

	history, err := p.History(ctx, d.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, len(attempts))
	for i, rec := range history {
		want := attempts[len(attempts)-1-i]
		assert.Equal(t, want.sql, rec.Query)
		assert.Equal(t, want.wantClass, rec.ErrorClass)
		assert.Equal(t, "bob", rec.Caller)
		assert.GreaterOrEqual(t, rec.Duration, time.Duration(0))
		if want.wantClass == "" {
			assert.Equal(t, model.StatusSuccess, rec.Status)
		} else {
			assert.Equal(t, model.StatusError, rec.Status)
			assert.NotEmpty(t, rec.ErrorMessage)
		}
	}

	limited, err := p.History(ctx, d.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPipeline_IngestErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t, func(b *Builder) { b.cfg.Ingest.MaxFileBytes = 64 })

	tests := []struct {
		name  string
		req   IngestRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "no name",
			req:  IngestRequest{Data: []byte(peopleCSV), Kind: model.SourceDelimited},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidName)
			},
		},
		{
			name: "control characters in name",
			req:  IngestRequest{Name: "a\x00b", Filename: "people.csv", Data: []byte(peopleCSV)},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidName)
			},
		},
		{
			name: "too large",
			req:  IngestRequest{Filename: "big.csv", Data: []byte(strings.Repeat("a,b\n", 100))},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrFileTooLarge)
			},
		},
		{
			name: "header only",
			req:  IngestRequest{Filename: "empty.csv", Data: []byte("a,b\n")},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyDataset)
				assert.ErrorIs(t, err, decoder.ErrEmptyDataset)
			},
		},
		{
			name: "empty file",
			req:  IngestRequest{Filename: "blank.csv", Data: []byte("  \n")},
			check: func(t *testing.T, err error) {
				var de *DecodeError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, decoder.ReasonEmptyFile, de.Reason)
			},
		},
		{
			name: "unsupported extension",
			req:  IngestRequest{Filename: "notes.pdf", Data: []byte(peopleCSV)},
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := p.Ingest(ctx, tt.req)
			assert.Nil(t, res)
			tt.check(t, err)
		})
	}

	list, total, err := p.Datasets(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestPipeline_DatasetsSchemaSample(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0
	p.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}

	people := ingest(t, p, "people.csv", peopleCSV)
	sales := ingest(t, p, "sales_2026.csv", "region,amount\nnorth,10\nsouth,20\neast,30\nwest,40\n")

	list, total, err := p.Datasets(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, sales.ID, list[0].ID)
	assert.Equal(t, people.ID, list[1].ID)

	list, total, err = p.Datasets(ctx, ListOptions{Search: "SALES"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, sales.ID, list[0].ID)

	cols, err := p.Schema(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amount"}, (&model.Dataset{Columns: cols}).ColumnNames())

	sample, err := p.Sample(ctx, sales.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sample.Len())

	sample, err = p.Sample(ctx, sales.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, sample.Len())

	_, err = p.Schema(ctx, "missing")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestPipeline_Stats(t *testing.T) {
	t.Parallel()

	p := openPipeline(t)
	d := ingest(t, p, "people.csv", "Name,Age\nAnn,30\nBob,25\nAnn,\n")

	stats, err := p.Stats(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []ColumnStats{
		{Name: "Name", Type: model.ColumnTypeText, NonEmpty: 3, Distinct: 2},
		{Name: "Age", Type: model.ColumnTypeNumeric, NonEmpty: 2, Distinct: 2, Min: float64(25), Max: float64(30)},
	}, stats)
}

func TestPipeline_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := openPipeline(t)
	d := ingest(t, p, "people.csv", peopleCSV)

	_, err := p.Query(ctx, QueryRequest{DatasetID: d.ID, SQL: "SELECT * FROM data"})
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, d.ID))

	_, err = p.Dataset(ctx, d.ID)
	require.ErrorIs(t, err, ErrDatasetNotFound)
	_, err = os.Stat(d.FilePath)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	history, err := p.History(ctx, d.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	rs, _, err := p.backend.Query(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = '"+d.TableName+"'", 1)
	require.NoError(t, err)
	assert.Zero(t, rs.Len())

	assert.ErrorIs(t, p.Delete(ctx, d.ID), ErrDatasetNotFound)
}

func TestPipeline_Closed(t *testing.T) {
	t.Parallel()

	p := openPipeline(t)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	qr, err := p.Query(context.Background(), QueryRequest{DatasetID: "x", SQL: "SELECT 1"})
	require.NotNil(t, qr)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = p.Ingest(context.Background(), IngestRequest{Filename: "people.csv", Data: []byte(peopleCSV)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipeline_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tabquery.db")

	first, err := NewBuilder().WithDatabasePath(path).Open(ctx)
	require.NoError(t, err)
	res, err := first.Ingest(ctx, IngestRequest{Filename: "people.csv", Data: []byte(peopleCSV)})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewBuilder().WithDatabasePath(path).Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	qr, err := second.Query(ctx, QueryRequest{DatasetID: res.Dataset.ID, SQL: "SELECT Name FROM data ORDER BY Age"})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"Name": "Bob"}, {"Name": "Ann"}}, qr.Rows)
}

func TestDatasetName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		filename string
		want     string
		wantErr  bool
	}{
		{name: "explicit", input: "  Sales  ", filename: "x.csv", want: "Sales"},
		{name: "from filename", filename: "/tmp/report.csv", want: "report"},
		{name: "compressed filename", filename: "report.csv.gz", want: "report"},
		{name: "nothing", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 256), wantErr: true},
		{name: "newline", input: "a\nb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := datasetName(tt.input, tt.filename)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploadExt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".csv", uploadExt("a.CSV"))
	assert.Equal(t, ".csv.gz", uploadExt("dir/a.csv.gz"))
	assert.Equal(t, "", uploadExt("README"))
	assert.Equal(t, ".xlsx.zst", uploadExt("B.XLSX.ZST"))
}
