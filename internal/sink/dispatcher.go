package sink

import (
	"context"

	"github.com/rs/zerolog"
)

// DispatchResult reports each sink's outcome independently; a nil error
// for an unconfigured sink means it was never attempted.
type DispatchResult struct {
	CSVErr error
	DBErr  error
}

// Dispatcher fans each row out to the configured sinks. Sink failures
// are independent: one sink failing never blocks or rolls back the
// other, and neither touches in-memory state.
type Dispatcher struct {
	csv    RowWriter
	db     RowWriter
	logger zerolog.Logger
}

// NewDispatcher wires the sinks; either may be nil when unconfigured.
func NewDispatcher(csv, db RowWriter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		csv:    csv,
		db:     db,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch writes the row to every configured sink, logging per-sink
// failures and reporting them to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, row Row) DispatchResult {
	var result DispatchResult

	if d.csv != nil {
		if err := d.csv.WriteRow(ctx, row); err != nil {
			result.CSVErr = err
			d.logger.Error().Err(err).
				Str("video_id", row.VideoID).
				Msg("csv sink write failed")
		}
	}

	if d.db != nil {
		if err := d.db.WriteRow(ctx, row); err != nil {
			result.DBErr = err
			d.logger.Error().Err(err).
				Str("video_id", row.VideoID).
				Msg("database sink write failed")
		}
	}

	return result
}
