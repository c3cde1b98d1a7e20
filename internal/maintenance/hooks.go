package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the slice of pgxpool.Pool the refresh needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RefreshMaterializedViews refreshes the dashboard materialized views.
// Uses CONCURRENTLY so reads are not blocked during refresh.
// Call this after a tick that appended email logs.
func RefreshMaterializedViews(ctx context.Context, db Execer, logger *slog.Logger) error {
	views := []string{
		"mv_email_log_stats",
	}

	for _, v := range views {
		start := time.Now()
		_, err := db.Exec(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", v))
		dur := time.Since(start).Round(time.Millisecond)

		if err != nil {
			logger.Warn("Failed to refresh materialized view",
				"view", v, "duration", dur, "error", err)
			return fmt.Errorf("refresh %s: %w", v, err)
		}
		logger.Info("Refreshed materialized view", "view", v, "duration", dur)
	}
	return nil
}
