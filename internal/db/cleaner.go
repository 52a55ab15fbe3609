package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartTombstoneCleaner purges soft-deleted documents older than retention
// every interval until ctx is done.
func StartTombstoneCleaner(
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
                    DELETE FROM documents
                     WHERE deleted = true
                       AND updated_at < $1
                `, cutoff)
				if err != nil {
					log.Error("failed to purge deleted documents", zap.Error(err))
					continue
				}
				if rows, _ := res.RowsAffected(); rows > 0 {
					log.Info("purged deleted documents", zap.Int64("removed", rows))
				}
			}
		}
	}()
}
