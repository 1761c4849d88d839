// Package filelock serializes writers in different processes that share a
// data directory.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const retryInterval = 10 * time.Millisecond

// Lock blocks until it holds the exclusive lock on path, or ctx is done. The
// lock file is created if missing and is never removed. The returned func
// releases the lock.
func Lock(ctx context.Context, path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}

	for {
		locked, err := tryLock(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if locked {
			return func() {
				unlock(f)
				f.Close()
			}, nil
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}
