package history

import (
	"context"
	"time"
)

// defaultPruneInterval is how often the retention loop prunes.
const defaultPruneInterval = 6 * time.Hour

// Pruner deletes entries older than a given age.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Logger is the logging interface used by the retention loop.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RunRetention prunes entries older than retention once immediately and
// then every interval until ctx is cancelled. It blocks; run it in a
// goroutine.
func RunRetention(ctx context.Context, p Pruner, retention, interval time.Duration, logger Logger) {
	if interval <= 0 {
		interval = defaultPruneInterval
	}

	prune := func() {
		n, err := p.Prune(ctx, retention)
		if logger == nil {
			return
		}
		if err != nil {
			logger.Error("history prune failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("history pruned", "rows", n, "retention", retention.String())
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
