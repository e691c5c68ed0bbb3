package tabquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/tabquery/backend"
	"github.com/nao1215/tabquery/config"
	"github.com/nao1215/tabquery/observability"
)

// Builder is a builder for pipelines and sessions with a fluent API.
//
// Basic usage:
//
//	pipeline, err := tabquery.NewBuilder().
//		WithDatabasePath("tabquery.db").
//		WithQueryTimeout(10 * time.Second).
//		Open(ctx)
//	if err != nil {
//		return err
//	}
//	defer pipeline.Close()
//
// Sessions share the same configuration:
//
//	session, err := tabquery.NewBuilder().WithEngine("sqlite").Session(ctx)
type Builder struct {
	// cfg holds every setting; the With methods overwrite single fields
	cfg config.Config
	// logger receives structured logs; nil discards them
	logger *slog.Logger
	// opener overrides the engine named by cfg.Session.Engine
	opener backend.Opener
	// open is the opener resolved by Build
	open backend.Opener
	// built reports that Build validated the current settings
	built bool
}

// NewBuilder creates a new builder with the default configuration.
//
// Example:
//
//	builder := tabquery.NewBuilder().
//		WithDatabasePath("/var/lib/tabquery/tabquery.db").
//		WithUploadDir("/var/lib/tabquery/uploads")
//	pipeline, err := builder.Open(ctx)
func NewBuilder() *Builder {
	return &Builder{cfg: config.Default()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg config.Config) *Builder {
	b.cfg = cfg
	b.built = false
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithDatabasePath sets the SQLite file holding the catalog and datasets.
func (b *Builder) WithDatabasePath(path string) *Builder {
	b.cfg.Storage.DatabasePath = path
	b.built = false
	return b
}

// WithUploadDir keeps raw uploads in dir. Empty disables it.
func (b *Builder) WithUploadDir(dir string) *Builder {
	b.cfg.Storage.UploadDir = dir
	return b
}

// WithQueryTimeout bounds each query.
func (b *Builder) WithQueryTimeout(timeout time.Duration) *Builder {
	b.cfg.Query.Timeout = timeout
	b.built = false
	return b
}

// WithMaxRows caps the rows a query returns.
func (b *Builder) WithMaxRows(n int) *Builder {
	b.cfg.Query.MaxRows = n
	b.built = false
	return b
}

// WithEngine selects the volatile engine for sessions: "duckdb", "sqlite"
// or "fallback".
func (b *Builder) WithEngine(engine string) *Builder {
	b.cfg.Session.Engine = engine
	b.built = false
	return b
}

// WithOpener overrides how sessions open their volatile backend. An opener
// that fails on first use puts the session into degraded mode.
func (b *Builder) WithOpener(open backend.Opener) *Builder {
	b.opener = open
	b.built = false
	return b
}

// Build validates the settings. Open and Session call it when needed.
func (b *Builder) Build(_ context.Context) (*Builder, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	b.open = b.opener
	if b.open == nil {
		open, err := backend.OpenerFor(b.cfg.Session.Engine)
		if err != nil {
			return nil, err
		}
		b.open = open
	}
	b.built = true
	return b, nil
}

// Open builds a pipeline over the configured database, creating and
// migrating it if needed. The caller must Close it.
func (b *Builder) Open(ctx context.Context) (*Pipeline, error) {
	if err := b.ensureBuilt(ctx); err != nil {
		return nil, err
	}
	return newPipeline(ctx, b.cfg, observability.OrDiscard(b.logger))
}

// Session builds an ephemeral session. It holds no open resources between
// calls.
func (b *Builder) Session(ctx context.Context) (*Session, error) {
	if err := b.ensureBuilt(ctx); err != nil {
		return nil, err
	}
	return newSession(b.cfg, b.open, observability.OrDiscard(b.logger)), nil
}

func (b *Builder) ensureBuilt(ctx context.Context) error {
	if b.built {
		return nil
	}
	if _, err := b.Build(ctx); err != nil {
		return errors.Join(errors.New("failed to build"), err)
	}
	return nil
}
