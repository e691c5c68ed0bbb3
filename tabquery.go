package tabquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nao1215/tabquery/backend"
	"github.com/nao1215/tabquery/catalog"
	"github.com/nao1215/tabquery/compression"
	"github.com/nao1215/tabquery/config"
	"github.com/nao1215/tabquery/decoder"
	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/execlog"
	"github.com/nao1215/tabquery/observability"
)

// SampleSize is the number of rows returned with an ingested dataset.
const SampleSize = 5

// MaxSampleSize bounds Pipeline.Sample.
const MaxSampleSize = 100

// maxNameLength is the longest accepted dataset name, in characters.
const maxNameLength = 255

// IngestRequest is one uploaded file.
type IngestRequest struct {
	// Name is the dataset display name. Empty means the file name without
	// its extensions.
	Name     string
	Filename string
	// Kind is the declared source kind. Empty means detect from Filename.
	Kind   model.SourceKind
	Data   []byte
	Caller string
}

// IngestResult describes a newly materialized dataset.
type IngestResult struct {
	Dataset   *model.Dataset `json:"dataset"`
	Sample    []model.Row    `json:"sample"`
	Attempted int            `json:"attempted"`
	Skipped   int            `json:"skipped"`
	Coerced   int            `json:"coerced"`
}

// QueryRequest is one query against a stored dataset. SQL refers to the
// dataset through the placeholder table name.
type QueryRequest struct {
	DatasetID string
	SQL       string
	Caller    string
}

// ListOptions filters and pages Pipeline.Datasets.
type ListOptions = catalog.ListOptions

// ColumnStats summarizes one dataset column.
type ColumnStats struct {
	Name     string           `json:"name"`
	Type     model.ColumnType `json:"type"`
	NonEmpty int64            `json:"non_empty"`
	Distinct int64            `json:"distinct"`
	Min      any              `json:"min,omitempty"`
	Max      any              `json:"max,omitempty"`
}

// Pipeline is the long-lived server shape: one persistent backend holding
// the catalog, the execution log and every dataset table.
type Pipeline struct {
	cfg     config.Config
	logger  *slog.Logger
	backend *backend.SQLBackend
	catalog *catalog.Store
	log     *execlog.SQLite
	exec    *executor
	decode  decoder.Options
	now     func() time.Time

	// ingestMu serializes table creation with catalog registration.
	ingestMu sync.Mutex
	closed   atomic.Bool
}

// Open opens a pipeline over the configured database. It is a shorthand for
// NewBuilder().WithConfig(cfg).Open(ctx).
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	return NewBuilder().WithConfig(cfg).WithLogger(logger).Open(ctx)
}

func newPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	b, err := backend.OpenSQLite(ctx, cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, NewErrorContext("open").WithDetails(cfg.Storage.DatabasePath).Error(err)
	}
	store, err := catalog.Open(b.DB(), logger)
	if err != nil {
		return nil, errors.Join(NewErrorContext("migrate").Error(err), b.Close())
	}
	if cfg.Storage.UploadDir != "" {
		if err := os.MkdirAll(cfg.Storage.UploadDir, 0o750); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create upload directory: %w", err), b.Close())
		}
	}

	log := execlog.NewSQLite(b.DB(), logger)
	return &Pipeline{
		cfg:     cfg,
		logger:  logger,
		backend: b,
		catalog: store,
		log:     log,
		exec:    newQueryExecutor(cfg.Query, log, logger),
		decode:  decodeOptions(cfg.Ingest),
		now:     time.Now,
	}, nil
}

func decodeOptions(cfg config.IngestConfig) decoder.Options {
	return decoder.Options{
		Delimiter:            cfg.DelimiterRune(),
		MaxRows:              cfg.MaxRows,
		MaxDecompressedBytes: cfg.MaxDecompressedBytes,
	}
}

// Ingest decodes an uploaded file, materializes it as a new table and
// registers it in the catalog.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	ec := NewErrorContext("ingest").WithFile(req.Filename)

	name, err := datasetName(req.Name, req.Filename)
	if err != nil {
		return nil, ec.Error(err)
	}
	if limit := p.cfg.Ingest.MaxFileBytes; limit > 0 && int64(len(req.Data)) > limit {
		return nil, ec.WithDetails(fmt.Sprintf("%d bytes, limit %d", len(req.Data), limit)).Error(ErrFileTooLarge)
	}
	kind, err := sourceKind(req.Kind, req.Filename)
	if err != nil {
		return nil, ec.Error(err)
	}

	res, err := decoder.Decode(ctx, req.Data, kind, p.decode)
	if err != nil {
		return nil, ec.Error(emptyDataset(err))
	}

	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	table, columns, load, err := materialize(ctx, p.backend, res)
	if err != nil {
		return nil, ec.Error(err)
	}
	ec.WithTable(table.String())

	d := &model.Dataset{
		ID:        uuid.NewString(),
		Name:      name,
		Filename:  req.Filename,
		FileSize:  int64(len(req.Data)),
		Columns:   columns,
		RowCount:  int64(load.Inserted),
		TableName: table.String(),
		Caller:    req.Caller,
		CreatedAt: p.now().UTC(),
	}
	if d.FilePath, err = p.storeUpload(d.ID, req.Filename, req.Data); err != nil {
		return nil, ec.Error(errors.Join(err, p.dropTable(table.String())))
	}
	if err := p.catalog.Insert(ctx, d); err != nil {
		return nil, ec.Error(errors.Join(err, p.dropTable(table.String()), removeUpload(d.FilePath)))
	}

	skipped := res.Skipped + load.Skipped
	observability.ObserveIngest(load.Inserted, skipped, load.Coerced)
	p.logger.Info("dataset ingested",
		slog.String("id", d.ID),
		slog.String("table", d.TableName),
		slog.Int64("rows", d.RowCount),
		slog.Int("skipped", skipped),
		slog.Int("coerced", load.Coerced),
	)

	sample, err := p.sample(ctx, table, SampleSize)
	if err != nil {
		p.logger.Warn("failed to read sample rows", slog.String("id", d.ID), slog.Any("error", err))
	}
	return &IngestResult{
		Dataset:   d,
		Sample:    sample.Rows,
		Attempted: load.Attempted,
		Skipped:   skipped,
		Coerced:   load.Coerced,
	}, nil
}

// materialize creates a fresh table for decoded rows. The column types come
// from the first data row.
func materialize(ctx context.Context, b backend.Backend, res *decoder.Result) (model.TableName, []model.Column, backend.LoadResult, error) {
	spec := backend.TableSpec{
		Name:    model.NewTableName(),
		Columns: res.Columns(),
	}
	load, err := b.Materialize(ctx, spec, res.Records)
	if err != nil {
		return model.TableName{}, nil, load, err
	}
	return spec.Name, spec.Columns, load, nil
}

func sourceKind(kind model.SourceKind, filename string) (model.SourceKind, error) {
	if kind != "" {
		return model.ParseSourceKind(string(kind))
	}
	return model.SourceKindFromPath(filename)
}

// datasetName validates a display name, deriving it from filename when empty.
func datasetName(name, filename string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		base := model.StripCompressionExt(filepath.Base(filename))
		name = strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	switch {
	case name == "" || name == ".":
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLength)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return "", fmt.Errorf("%w: contains control characters", ErrInvalidName)
	}
	return name, nil
}

// storeUpload keeps the raw file as <id><ext> when an upload directory is
// configured.
func (p *Pipeline) storeUpload(id, filename string, data []byte) (string, error) {
	if p.cfg.Storage.UploadDir == "" {
		return "", nil
	}
	path := filepath.Join(p.cfg.Storage.UploadDir, id+uploadExt(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

// uploadExt returns the file extension including a compression suffix,
// e.g. ".csv.gz".
func uploadExt(filename string) string {
	base := strings.ToLower(filepath.Base(filename))
	suffix := compression.DetectFromPath(base).Extension()
	return filepath.Ext(strings.TrimSuffix(base, suffix)) + suffix
}

func removeUpload(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove upload %s: %w", path, err)
	}
	return nil
}

func (p *Pipeline) dropTable(name string) error {
	return p.backend.DropTable(context.Background(), name)
}

// Query runs a validated query against a stored dataset. The result is
// non-nil even when err is not.
func (p *Pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if p.closed.Load() {
		return &QueryResult{}, ErrClosed
	}
	return p.exec.execute(ctx, req.DatasetID, req.SQL, req.Caller, func(ctx context.Context) (*target, error) {
		d, err := p.Dataset(ctx, req.DatasetID)
		if err != nil {
			return nil, err
		}
		return &target{
			backend: p.backend,
			table:   model.ParseTableName(d.TableName),
			release: func() {},
		}, nil
	})
}

// History returns the newest execution records of a dataset first.
func (p *Pipeline) History(ctx context.Context, datasetID string, limit int) ([]model.QueryExecutionRecord, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	return p.log.History(ctx, datasetID, limit)
}

// Dataset returns one dataset.
func (p *Pipeline) Dataset(ctx context.Context, id string) (*model.Dataset, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	d, err := p.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	return d, err
}

// Datasets lists datasets newest first and reports the total match count.
func (p *Pipeline) Datasets(ctx context.Context, opts ListOptions) ([]*model.Dataset, int, error) {
	if p.closed.Load() {
		return nil, 0, ErrClosed
	}
	return p.catalog.List(ctx, opts)
}

// Schema returns the columns of a dataset.
func (p *Pipeline) Schema(ctx context.Context, id string) ([]model.Column, error) {
	d, err := p.Dataset(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Columns, nil
}

// Sample returns the first n rows of a dataset. n is clamped to
// [1, MaxSampleSize]; zero means SampleSize.
func (p *Pipeline) Sample(ctx context.Context, id string, n int) (*model.ResultSet, error) {
	d, err := p.Dataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = SampleSize
	}
	return p.sample(ctx, model.ParseTableName(d.TableName), min(n, MaxSampleSize))
}

func (p *Pipeline) sample(ctx context.Context, table model.TableName, n int) (*model.ResultSet, error) {
	rs, _, err := p.backend.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", table.Quoted(), n), n)
	if err != nil {
		return &model.ResultSet{}, err
	}
	return rs, nil
}

// Stats returns non-empty and distinct counts per column, plus the range of
// numeric columns.
func (p *Pipeline) Stats(ctx context.Context, id string) ([]ColumnStats, error) {
	d, err := p.Dataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(d.Columns) == 0 {
		return nil, nil
	}

	items := make([]string, 0, len(d.Columns)*4)
	for i, c := range d.Columns {
		col := model.QuoteIdent(c.Name)
		items = append(items,
			fmt.Sprintf(`COUNT(CASE WHEN %s IS NOT NULL AND %s != '' THEN 1 END) AS "n%d"`, col, col, i),
			fmt.Sprintf(`COUNT(DISTINCT %s) AS "d%d"`, col, i),
			fmt.Sprintf(`MIN(%s) AS "lo%d"`, col, i),
			fmt.Sprintf(`MAX(%s) AS "hi%d"`, col, i),
		)
	}
	stmt := "SELECT " + strings.Join(items, ", ") + " FROM " + model.ParseTableName(d.TableName).Quoted()

	rs, _, err := p.backend.Query(ctx, stmt, 1)
	if err != nil {
		return nil, NewErrorContext("stats").WithDataset(id).Error(err)
	}
	if len(rs.Rows) != 1 {
		return nil, NewErrorContext("stats").WithDataset(id).Error(errors.New("aggregate returned no row"))
	}

	row := rs.Rows[0]
	stats := make([]ColumnStats, len(d.Columns))
	for i, c := range d.Columns {
		stats[i] = ColumnStats{
			Name:     c.Name,
			Type:     c.Type,
			NonEmpty: asInt64(row[fmt.Sprintf("n%d", i)]),
			Distinct: asInt64(row[fmt.Sprintf("d%d", i)]),
		}
		if c.Type == model.ColumnTypeNumeric {
			stats[i].Min = row[fmt.Sprintf("lo%d", i)]
			stats[i].Max = row[fmt.Sprintf("hi%d", i)]
		}
	}
	return stats, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// Delete drops a dataset's table, its catalog entry with its execution
// records, and the stored upload.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	d, err := p.Dataset(ctx, id)
	if err != nil {
		return err
	}
	ec := NewErrorContext("delete").WithDataset(id).WithTable(d.TableName)

	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	if err := p.backend.DropTable(ctx, d.TableName); err != nil {
		return ec.Error(err)
	}
	if err := p.catalog.Delete(ctx, id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ec.Error(ErrDatasetNotFound)
		}
		return ec.Error(err)
	}
	if err := removeUpload(d.FilePath); err != nil {
		p.logger.Warn("failed to remove upload", slog.String("id", id), slog.Any("error", err))
	}
	p.logger.Info("dataset deleted", slog.String("id", id), slog.String("table", d.TableName))
	return nil
}

// Close releases the database. Further calls fail with ErrClosed.
func (p *Pipeline) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.backend.Close()
}
