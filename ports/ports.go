package ports

import (
	"context"

	"sleepband/domain/core"
	"sleepband/internal/aggregate"
)

// ResultSink writes one run's final tables to a destination (workbook,
// CSV directory, database). Sinks are independent; a pipeline may fan
// out to several.
type ResultSink interface {
	WriteTables(ctx context.Context, runID core.RunID, tables *aggregate.Tables) error
}

// RunRepository persists runs and their tables for later inspection.
type RunRepository interface {
	ResultSink
	// EnsureSchema creates the backing tables if they do not exist.
	EnsureSchema(ctx context.Context) error
}
