package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// progressEvery is how many rows pass between debug progress logs.
const progressEvery = 10000

// Summary describes one completed feed run.
type Summary struct {
	RunID    uuid.UUID
	Feed     string
	Rows     int
	Duration time.Duration
}

// Run drains src into sink and closes the sink. A uuid.Nil id is replaced by
// a fresh random one. If the source or sink fails, or ctx is cancelled
// between rows, the sink is aborted (or closed when it cannot abort) and the
// error is returned.
func Run(ctx context.Context, id uuid.UUID, src Source, sink Sink, logger *zap.Logger) (*Summary, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	schema := src.Schema()
	start := time.Now()
	summary := &Summary{RunID: id, Feed: schema.Name}

	logger = logger.With(zap.String("run_id", id.String()), zap.String("feed", schema.Name))
	logger.Info("Starting feed run", zap.Int("expected_rows", src.Len()))

	fail := func(err error) (*Summary, error) {
		if a, ok := sink.(Aborter); ok {
			if abortErr := a.Abort(); abortErr != nil {
				logger.Warn("Failed to abort sink", zap.Error(abortErr))
			}
		} else if closeErr := sink.Close(); closeErr != nil {
			logger.Warn("Failed to close sink", zap.Error(closeErr))
		}
		summary.Duration = time.Since(start)
		logger.Error("Feed run failed",
			zap.Int("rows", summary.Rows),
			zap.Duration("duration", summary.Duration),
			zap.Error(err))
		return summary, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("feed run cancelled: %w", err))
		}
		values, ok, err := src.Next()
		if err != nil {
			return fail(fmt.Errorf("failed to compute %s row %d: %w", schema.Name, summary.Rows+1, err))
		}
		if !ok {
			break
		}
		if err := sink.Write(values); err != nil {
			return fail(fmt.Errorf("failed to write %s row %d: %w", schema.Name, summary.Rows+1, err))
		}
		summary.Rows++
		if summary.Rows%progressEvery == 0 {
			logger.Debug("Feed progress", zap.Int("rows", summary.Rows))
		}
	}

	if err := sink.Close(); err != nil {
		summary.Duration = time.Since(start)
		return summary, fmt.Errorf("failed to close %s sink: %w", schema.Name, err)
	}

	summary.Duration = time.Since(start)
	logger.Info("Feed run completed",
		zap.Int("rows", summary.Rows),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}
