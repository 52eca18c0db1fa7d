// SPDX-License-Identifier: ISC

// Package extract defines the Extractor boundary: the
// external collaborator that streams raw-source entries as publishable
// tuples. Concrete readers (Unchained Index chunks, nametag JSON lines,
// signature text lines) live in sub-packages and are invoked through this
// narrow contract only.
package extract

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bitmark-inc/logger"

	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/toddfault"
)

// Tuple is one raw input record yielded by an Extractor, already tagged
// with the VolumeID and ChapterID it belongs to.
type Tuple struct {
	Volume  ids.VolumeID
	Chapter ids.ChapterID
	Key     ids.RecordKey
	Value   ids.RecordValue
}

// Extractor streams a finite sequence of Tuples. Once it emits a tuple
// with VolumeID > V, no further tuples for V will follow;
// a source that cannot guarantee this should be wrapped with Buffering.
type Extractor interface {
	// Next returns toddfault.ErrRawSourceExhausted (wrapped) once drained.
	Next(ctx context.Context) (Tuple, error)
	Close() error
}

// EOF is returned by concrete extractors to signal exhaustion; callers
// see it wrapped as toddfault.ErrRawSourceExhausted via AsExhausted.
var EOF = io.EOF

// AsExhausted normalises an underlying io.EOF into the engine's sentinel.
func AsExhausted(err error) error {
	if err == io.EOF {
		return fmt.Errorf("%w", toddfault.ErrRawSourceExhausted)
	}
	return err
}

// tupleHeap orders buffered tuples by ascending VolumeID, a min-heap used
// by Buffering to impose the engine's required non-decreasing order.
type tupleHeap []Tuple

func (h tupleHeap) Len() int            { return len(h) }
func (h tupleHeap) Less(i, j int) bool  { return h[i].Volume < h[j].Volume }
func (h tupleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tupleHeap) Push(x interface{}) { *h = append(*h, x.(Tuple)) }
func (h *tupleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Buffering wraps an Extractor whose underlying source does not already
// emit tuples in non-decreasing VolumeID order. It drains the entire
// source eagerly into a min-heap and replays it in order; acceptable
// because raw sources in this engine are finite. A production-scale
// source motivates a bounded k-way merge instead, left as a
// caller-level decision.
type Buffering struct {
	inner  Extractor
	heap   tupleHeap
	loaded bool
	log    *logger.L
}

// NewBuffering wraps inner so its output is guaranteed non-decreasing in
// VolumeID.
func NewBuffering(inner Extractor) *Buffering {
	return &Buffering{inner: inner, log: logger.New("extract")}
}

func (b *Buffering) load(ctx context.Context) error {
	if b.loaded {
		return nil
	}
	b.loaded = true
	heap.Init(&b.heap)
	for {
		t, err := b.inner.Next(ctx)
		if err != nil {
			if err == io.EOF || errors.Is(err, toddfault.ErrRawSourceExhausted) {
				b.log.Infof("buffered %d tuples for volume ordering", b.heap.Len())
				return nil
			}
			b.log.Errorf("buffering raw source: %s", err)
			return err
		}
		heap.Push(&b.heap, t)
	}
}

// Next returns the buffered tuple with the lowest VolumeID.
func (b *Buffering) Next(ctx context.Context) (Tuple, error) {
	if err := b.load(ctx); err != nil {
		return Tuple{}, err
	}
	if b.heap.Len() == 0 {
		return Tuple{}, AsExhausted(io.EOF)
	}
	t := heap.Pop(&b.heap).(Tuple)
	return t, nil
}

// Close releases the wrapped Extractor's resources.
func (b *Buffering) Close() error { return b.inner.Close() }
