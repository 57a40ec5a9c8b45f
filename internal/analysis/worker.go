package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/fightlens/fightlens/internal/job"
)

// StartWorker polls the registry for pending jobs and runs them one at a
// time. It returns immediately; the loop stops when ctx is cancelled.
func StartWorker(ctx context.Context, store *job.Store, pipeline *Pipeline, interval time.Duration) {
	go func() {
		slog.Info("analysis-worker: started", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("analysis-worker: shutting down")
				return
			case <-ticker.C:
				for {
					claimed := store.ClaimNext()
					if claimed == nil {
						break
					}
					pipeline.Run(ctx, claimed)
				}
			}
		}
	}()
}
