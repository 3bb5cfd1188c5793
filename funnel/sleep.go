package funnel

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done. It is the pause between messages
// of one scene.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
