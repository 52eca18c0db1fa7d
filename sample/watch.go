// SPDX-License-Identifier: ISC

package sample

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/common/log"
)

// WatchingObtainer decorates an Obtainer so a second Obtain call against
// the same cacheDir within one process notices a sample file that
// finished arriving out-of-band (e.g. a prior, still-running download),
// instead of re-fetching.
type WatchingObtainer struct {
	inner    Obtainer
	expected string // filename marking completion, e.g. "MANIFEST" or similar sentinel
	timeout  time.Duration
}

// NewWatchingObtainer wraps inner. expected is the filename (relative to
// cacheDir) whose presence marks the sample data as fully arrived.
func NewWatchingObtainer(inner Obtainer, expected string, timeout time.Duration) *WatchingObtainer {
	return &WatchingObtainer{inner: inner, expected: expected, timeout: timeout}
}

// Obtain returns immediately if expected is already present in cacheDir;
// otherwise it watches cacheDir for its arrival (bounded by timeout)
// before falling back to delegating to the wrapped Obtainer.
func (w *WatchingObtainer) Obtain(ctx context.Context, cacheDir string) (string, error) {
	markerPath := cacheDir + string(os.PathSeparator) + w.expected
	if _, err := os.Stat(markerPath); err == nil {
		return cacheDir, nil
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure cache dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn(err.Error())
		return w.inner.Obtain(ctx, cacheDir)
	}
	defer watcher.Close()

	if err := watcher.Add(cacheDir); err != nil {
		log.Warnf("cannot watch %s: %s", cacheDir, err)
		return w.inner.Obtain(ctx, cacheDir)
	}

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return w.inner.Obtain(ctx, cacheDir)
			}
			if ev.Name == markerPath && (ev.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				return cacheDir, nil
			}
		case <-deadline.C:
			return w.inner.Obtain(ctx, cacheDir)
		case <-ctx.Done():
			return "", ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return w.inner.Obtain(ctx, cacheDir)
			}
			return "", fmt.Errorf("watch %s: %w", cacheDir, err)
		}
	}
}
