//go:build !cgo

package backend

import (
	"context"
	"fmt"
	"log/slog"
)

// OpenDuckDB reports the engine unavailable in builds without cgo.
func OpenDuckDB(_ context.Context, _ *slog.Logger) (*SQLBackend, error) {
	return nil, fmt.Errorf("%w: duckdb requires cgo", ErrEngineUnavailable)
}
