package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/storage"
)

// PruneHistory deletes finished operations that ended more than keepFor ago.
// Running operations are kept regardless of age.
func PruneHistory(ctx context.Context, repo storage.OperationWriteRepository, keepFor time.Duration) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	n, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(-keepFor))
	if err != nil {
		return 0, fmt.Errorf("failed to prune operation history: %w", err)
	}

	if n > 0 {
		logger.InfoContext(ctx, "pruned operation history", "removed", n, "keep_for", keepFor)
	}

	return n, nil
}

// Run prunes the history every interval until ctx is done.
func Run(ctx context.Context, repo storage.OperationWriteRepository, interval, keepFor time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := PruneHistory(ctx, repo, keepFor); err != nil {
				logger.ErrorContext(ctx, "history cleanup failed", "err", err)
			}
		}
	}
}
