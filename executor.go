package tabquery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nao1215/tabquery/backend"
	"github.com/nao1215/tabquery/config"
	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/execlog"
	"github.com/nao1215/tabquery/observability"
	"github.com/nao1215/tabquery/query"
)

// QueryResult is the outcome of one query attempt. It is returned even when
// the attempt fails, so Duration is always set.
type QueryResult struct {
	Columns     []string      `json:"columns"`
	Rows        []model.Row   `json:"rows"`
	RowCount    int           `json:"row_count"`
	Duration    time.Duration `json:"duration"`
	Engine      string        `json:"engine,omitempty"`
	Truncated   bool          `json:"truncated"`
	ExecutedSQL string        `json:"executed_sql,omitempty"`
}

// ResultSet returns the rows in the shape every engine and exporter uses.
func (r *QueryResult) ResultSet() *model.ResultSet {
	return &model.ResultSet{Columns: r.Columns, Rows: r.Rows}
}

// target is a materialized table ready to be queried.
type target struct {
	backend backend.Backend
	table   model.TableName
	release func()
}

type prepareFunc func(ctx context.Context) (*target, error)

// executor validates, rewrites, runs and logs one query attempt.
type executor struct {
	validator *query.Validator
	rewriter  *query.Rewriter
	timeout   time.Duration
	sem       *semaphore.Weighted
	log       execlog.Log
	logger    *slog.Logger
}

func newExecutor(validator *query.Validator, rewriter *query.Rewriter, timeout time.Duration, maxConcurrent int, log execlog.Log, logger *slog.Logger) *executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = config.DefaultQueryTimeout
	}
	return &executor{
		validator: validator,
		rewriter:  rewriter,
		timeout:   timeout,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		log:       log,
		logger:    logger,
	}
}

func newQueryExecutor(cfg config.QueryConfig, log execlog.Log, logger *slog.Logger) *executor {
	validator := query.NewValidator(cfg.StrictGrammar)
	validator.MaxLength = cfg.MaxLength
	validator.Placeholder = cfg.Placeholder
	return newExecutor(validator, query.NewRewriter(cfg.Placeholder, cfg.MaxRows), cfg.Timeout, cfg.MaxConcurrent, log, logger)
}

// execute runs one attempt and records exactly one execution record for it.
func (e *executor) execute(ctx context.Context, datasetID, sql, caller string, prepare prepareFunc) (*QueryResult, error) {
	start := time.Now()
	res := &QueryResult{}
	err := e.run(ctx, res, sql, prepare)
	res.Duration = max(time.Since(start), 0)

	entry := execlog.Entry{
		DatasetID: datasetID,
		Caller:    caller,
		Query:     sql,
		Duration:  res.Duration,
		Status:    model.StatusSuccess,
	}
	if err != nil {
		entry.Status = model.StatusError
		entry.ErrorClass = errorClass(err)
		entry.ErrorMessage = err.Error()
	}
	e.log.Record(ctx, entry)

	engine := res.Engine
	if engine == "" {
		engine = "none"
	}
	observability.ObserveQuery(string(entry.Status), entry.ErrorClass, engine, res.Duration)
	return res, err
}

func (e *executor) run(ctx context.Context, res *QueryResult, sql string, prepare prepareFunc) error {
	if err := e.validator.Validate(sql); err != nil {
		e.logger.Info("query rejected", slog.Any("error", err))
		return err
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return query.Classify(err)
	}
	defer e.sem.Release(1)

	t, err := prepare(ctx)
	if err != nil {
		return err
	}
	defer t.release()

	res.Engine = t.backend.Engine()
	res.ExecutedSQL = e.rewriter.Rewrite(sql, t.table)

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rs, truncated, err := t.backend.Query(qctx, res.ExecutedSQL, e.rewriter.MaxRows())
	if err != nil {
		be := query.Classify(err)
		if errors.Is(qctx.Err(), context.DeadlineExceeded) {
			be = &BackendError{Class: query.ClassTimeout, Message: query.ClassTimeout.Message(), Err: err}
		}
		e.logger.Warn("query failed",
			slog.String("class", string(be.Class)),
			slog.String("engine", res.Engine),
			slog.String("table", t.table.String()),
			slog.Any("error", err),
		)
		return be
	}

	res.Columns = rs.Columns
	res.Rows = rs.Rows
	res.RowCount = len(rs.Rows)
	res.Truncated = truncated
	return nil
}
