package providerfactory

import (
	"context"
	"time"
)

// StartKeepAlive calls tick every interval until ctx is done. The returned channel closes once
// the ticker goroutine has exited.
func StartKeepAlive(ctx context.Context, interval time.Duration, tick func()) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 || tick == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
	return done
}
