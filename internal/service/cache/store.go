package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// DefaultTTL is how long a stored conversation stays valid after its last write.
const DefaultTTL = time.Hour

// Store keeps the last-known message list per session with a fixed expiry.
type Store interface {
	// Set overwrites the entry for sessionID, expiring TTL from now.
	Set(ctx context.Context, sessionID string, messages []chat.Message) error
	// Get returns the entry if it is still valid.
	Get(ctx context.Context, sessionID string) (chat.StoredConversation, bool, error)
	// Sweep removes every expired entry and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
	// Sessions enumerates the session ids physically held by the store.
	Sessions(ctx context.Context) ([]string, error)
}

func logger() *zap.SugaredLogger {
	return zap.S().Named("cache")
}

// RunSweeper sweeps store every interval until ctx is done.
// A non-positive interval disables background sweeping.
func RunSweeper(ctx context.Context, store Store, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Sweep(ctx)
			if err != nil {
				logger().Infow("background sweep fail", "err", err)
				continue
			}
			if n > 0 {
				logger().Debugw("background sweep", "removed", n)
			}
		}
	}
}
