package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartSessionReaper deletes stale portal sessions with interval
func StartSessionReaper(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				res, err := db.ExecContext(ctx, `
                    DELETE FROM sessions
                     WHERE (last_success_at IS NULL OR last_success_at < $1)
                       AND (locked_until IS NULL OR locked_until < now())
                `, cutoff)
				if err != nil {
					log.Error("failed to reap stale sessions", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("reaped stale sessions", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
