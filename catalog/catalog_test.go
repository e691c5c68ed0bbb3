package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/tabquery/backend"
	"github.com/nao1215/tabquery/domain/model"
)

func newStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	b, err := backend.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	store, err := Open(b.DB(), nil)
	require.NoError(t, err)
	return store, b.DB()
}

func sampleDataset(name string, created time.Time) *model.Dataset {
	return &model.Dataset{
		ID:        name + "-id",
		Name:      name,
		Filename:  name + ".csv",
		FileSize:  42,
		Columns:   []model.Column{{Name: "Name", Type: model.ColumnTypeText}, {Name: "Age", Type: model.ColumnTypeNumeric}},
		RowCount:  2,
		TableName: model.NewTableName().String(),
		Caller:    "tester",
		CreatedAt: created,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	_, db := newStore(t)
	require.NoError(t, Migrate(db))

	version, err := migrationVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestStore_InsertGet(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := sampleDataset("people", created)

	require.NoError(t, store.Insert(ctx, want))

	got, err := store.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Columns, got.Columns)
	assert.Equal(t, want.TableName, got.TableName)
	assert.Equal(t, want.RowCount, got.RowCount)
	assert.True(t, created.Equal(got.CreatedAt), "created_at round trips: %v", got.CreatedAt)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_InsertDuplicateTableName(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	first := sampleDataset("a", time.Now())
	second := sampleDataset("b", time.Now())
	second.TableName = first.TableName

	require.NoError(t, store.Insert(ctx, first))
	require.Error(t, store.Insert(ctx, second))
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"sales_2024", "inventory", "sales_2025", "100%_real"} {
		require.NoError(t, store.Insert(ctx, sampleDataset(name, base.Add(time.Duration(i)*time.Hour))))
	}

	tests := []struct {
		name      string
		opts      ListOptions
		wantNames []string
		wantTotal int
	}{
		{name: "all newest first", opts: ListOptions{}, wantNames: []string{"100%_real", "sales_2025", "inventory", "sales_2024"}, wantTotal: 4},
		{name: "search", opts: ListOptions{Search: "SALES"}, wantNames: []string{"sales_2025", "sales_2024"}, wantTotal: 2},
		{name: "page", opts: ListOptions{Limit: 2, Offset: 1}, wantNames: []string{"sales_2025", "inventory"}, wantTotal: 4},
		{name: "wildcards are literal", opts: ListOptions{Search: "%"}, wantNames: []string{"100%_real"}, wantTotal: 1},
		{name: "no match", opts: ListOptions{Search: "nothing"}, wantNames: nil, wantTotal: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, total, err := store.List(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			var names []string
			for _, d := range got {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestStore_DeleteCascades(t *testing.T) {
	t.Parallel()

	store, db := newStore(t)
	ctx := context.Background()
	d := sampleDataset("people", time.Now())
	require.NoError(t, store.Insert(ctx, d))

	_, err := db.ExecContext(ctx,
		`INSERT INTO query_executions (requested_id, dataset_id, query, duration_ns, status, created_at) VALUES (?, ?, 'SELECT 1', 1, 'success', ?)`,
		d.ID, d.ID, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, d.ID))
	require.ErrorIs(t, store.Delete(ctx, d.ID), ErrNotFound)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_executions`).Scan(&n))
	assert.Equal(t, 0, n)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestStore_DatabaseFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk I/O error")

	t.Run("insert", func(t *testing.T) {
		t.Parallel()
		db, mock := newSQLMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO datasets`)).WillReturnError(boom)

		err := New(db, nil).Insert(context.Background(), sampleDataset("x", time.Now()))
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get", func(t *testing.T) {
		t.Parallel()
		db, mock := newSQLMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM datasets WHERE id = ?`)).WithArgs("x").WillReturnError(boom)

		_, err := New(db, nil).Get(context.Background(), "x")
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt columns", func(t *testing.T) {
		t.Parallel()
		db, mock := newSQLMock(t)
		rows := sqlmock.NewRows([]string{"id", "name", "filename", "file_size", "columns_json", "row_count", "table_name", "file_path", "caller", "created_at"}).
			AddRow("x", "x", "x.csv", 1, "{not json", 1, "dataset_x", "", "", time.Now())
		mock.ExpectQuery(regexp.QuoteMeta(`FROM datasets WHERE id = ?`)).WillReturnRows(rows)

		_, err := New(db, nil).Get(context.Background(), "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode columns")
	})

	t.Run("delete rows affected", func(t *testing.T) {
		t.Parallel()
		db, mock := newSQLMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM datasets`)).
			WillReturnResult(sqlmock.NewErrorResult(fmt.Errorf("rows affected: %w", boom)))

		err := New(db, nil).Delete(context.Background(), "x")
		require.ErrorIs(t, err, boom)
	})
}
