package tabquery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/tabquery/backend"
	"github.com/nao1215/tabquery/config"
	"github.com/nao1215/tabquery/decoder"
	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/execlog"
	"github.com/nao1215/tabquery/observability"
	"github.com/nao1215/tabquery/query"
)

// SessionRequest is one file plus one query. Nothing outlives the call
// except the decode cache entry and the execution record.
type SessionRequest struct {
	Data []byte
	// Kind is the declared source kind. When empty it is detected from
	// Filename, and delimited text is assumed without a Filename.
	Kind     model.SourceKind
	Filename string
	SQL      string
	Caller   string
}

// Session is the ephemeral shape: every Execute materializes the file into
// a fresh volatile backend and closes it before returning.
type Session struct {
	cfg      config.Config
	logger   *slog.Logger
	selector *backend.Selector
	cache    *decoder.Cache
	log      *execlog.Memory
	exec     *executor
}

func newSession(cfg config.Config, open backend.Opener, logger *slog.Logger) *Session {
	log := execlog.NewMemory()
	return &Session{
		cfg:      cfg,
		logger:   logger,
		selector: backend.NewSelector(open, logger),
		cache:    decoder.NewCache(decodeOptions(cfg.Ingest), cfg.Session.CacheEntries),
		log:      log,
		exec:     newQueryExecutor(cfg.Query, log, logger),
	}
}

// Execute decodes the file, materializes it into a volatile backend and
// runs the query against it. The result is non-nil even when err is not.
func (s *Session) Execute(ctx context.Context, req SessionRequest) (*QueryResult, error) {
	kind := req.Kind
	if kind == "" && req.Filename == "" {
		kind = model.SourceDelimited
	}
	kind, kindErr := sourceKind(kind, req.Filename)
	datasetID := s.datasetID(req.Data, kind)

	return s.exec.execute(ctx, datasetID, req.SQL, req.Caller, func(ctx context.Context) (*target, error) {
		if kindErr != nil {
			return nil, kindErr
		}
		if limit := s.cfg.Ingest.MaxFileBytes; limit > 0 && int64(len(req.Data)) > limit {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(req.Data), limit)
		}

		res, hit, err := s.cache.Decode(ctx, req.Data, kind)
		if err != nil {
			return nil, emptyDataset(err)
		}
		if hit {
			observability.IncrementDecodeCacheHits()
		}

		b, err := s.selector.Open(ctx)
		if err != nil {
			return nil, query.Classify(err)
		}
		table, _, load, err := materialize(ctx, b, res)
		if err != nil {
			if cerr := b.Close(); cerr != nil {
				s.logger.Warn("failed to close backend", slog.Any("error", cerr))
			}
			return nil, err
		}
		s.logger.Debug("session table materialized",
			slog.String("engine", b.Engine()),
			slog.String("table", table.String()),
			slog.Int("rows", load.Inserted),
			slog.Bool("cache_hit", hit),
		)
		return &target{
			backend: b,
			table:   table,
			release: func() {
				if err := b.Close(); err != nil {
					s.logger.Warn("failed to close backend", slog.String("engine", b.Engine()), slog.Any("error", err))
				}
			},
		}, nil
	})
}

// datasetID names a session file by its content hash.
func (s *Session) datasetID(data []byte, kind model.SourceKind) string {
	sum, _, _ := strings.Cut(s.cache.Key(data, kind), "/")
	return "session:" + sum[:16]
}

// State reports whether the volatile engine is in use or the session has
// degraded to the fallback interpreter.
func (s *Session) State() backend.State {
	return s.selector.State()
}

// History returns the session's newest execution records first.
func (s *Session) History(ctx context.Context, limit int) ([]model.QueryExecutionRecord, error) {
	return s.log.History(ctx, "", limit)
}
