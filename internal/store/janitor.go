package store

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Purger is implemented by backends that need expired entries removed explicitly.
// Redis expires keys on its own.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// RunJanitor purges expired entries from s every interval until ctx is done.
// It returns immediately when s does not implement [Purger].
func RunJanitor(ctx context.Context, s Store, interval time.Duration, logger *log.Logger) {
	p, ok := s.(Purger)
	if !ok {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				logger.Warn("store purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired entries", "count", n)
			}
		}
	}
}
