package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry drains buffered telemetry before exit. Metrics are pull-based
// so only the log buffers need syncing. Call after in-flight requests finish.
func FlushTelemetry(_ context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("sync logs: %w", err)
	}
	return nil
}
