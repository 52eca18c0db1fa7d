// SPDX-License-Identifier: ISC

package sample_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/sample"
)

type stubObtainer struct {
	calls int
	root  string
}

func (s *stubObtainer) Obtain(ctx context.Context, cacheDir string) (string, error) {
	s.calls++
	return s.root, nil
}

func TestObtainReturnsImmediatelyWhenMarkerPresent(t *testing.T) {
	cacheDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "COMPLETE"), nil, 0o644))

	inner := &stubObtainer{root: "unused"}
	w := sample.NewWatchingObtainer(inner, "COMPLETE", time.Second)

	root, err := w.Obtain(context.Background(), cacheDir)
	require.NoError(t, err)
	assert.Equal(t, cacheDir, root)
	assert.Zero(t, inner.calls)
}

func TestObtainFallsBackToInnerAfterTimeout(t *testing.T) {
	cacheDir := t.TempDir()

	inner := &stubObtainer{root: "fetched"}
	w := sample.NewWatchingObtainer(inner, "COMPLETE", 50*time.Millisecond)

	root, err := w.Obtain(context.Background(), cacheDir)
	require.NoError(t, err)
	assert.Equal(t, "fetched", root)
	assert.Equal(t, 1, inner.calls)
}

func TestObtainNoticesMarkerArrival(t *testing.T) {
	cacheDir := t.TempDir()

	inner := &stubObtainer{root: "unused"}
	w := sample.NewWatchingObtainer(inner, "COMPLETE", 5*time.Second)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(cacheDir, "COMPLETE"), nil, 0o644)
	}()

	root, err := w.Obtain(context.Background(), cacheDir)
	require.NoError(t, err)
	assert.Equal(t, cacheDir, root)
	assert.Zero(t, inner.calls)
}
