package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	// lockFileName lives beside the record files and is never removed
	lockFileName = "cache.lock"

	lockRetryDelay = 25 * time.Millisecond
)

// ErrLocked is returned when another build holds the project's cache lock
// past the store's lock timeout
var ErrLocked = errors.New("project cache is locked by another build")

// acquireLock takes the exclusive advisory lock for a cache directory. The
// returned release func must be called on every path.
func acquireLock(ctx context.Context, cacheDir string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fl := flock.New(filepath.Join(cacheDir, lockFileName))

	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		// The caller's own cancellation is not contention
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w (%s after %s)", ErrLocked, cacheDir, timeout)
		}

		return nil, fmt.Errorf("failed to lock %s: %w", cacheDir, err)
	}

	if !locked {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, cacheDir)
	}

	return func() {
		_ = fl.Unlock()
	}, nil
}
