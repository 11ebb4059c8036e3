package cache

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Sweep runs a periodic cleanup of expired entries until ctx is
// cancelled. Run it in its own goroutine; lazy expiry on Get keeps the
// cache correct without it, the sweeper just reclaims memory for keys
// nobody reads again.
func Sweep(ctx context.Context, logger *log.Logger, interval time.Duration, c *Cache) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := c.PurgeExpired()
			if n > 0 {
				logger.Debug("cache sweep removed expired entries", "count", n)
			}
		}
	}
}
