// SPDX-License-Identifier: ISC

package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/todd-io/todd/chapter"
	"github.com/todd-io/todd/cid"
	"github.com/todd-io/todd/codec"
	"github.com/todd-io/todd/extract"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/manifest"
	"github.com/todd-io/todd/recordstore"
	"github.com/todd-io/todd/spec"
	"github.com/todd-io/todd/workers"
)

const chapterFileSuffix = ".ssz_snappy"

// accumulator holds one recordstore.Builder per ChapterID, reused
// across Volumes. Finalising a Volume fans out across its builders
// through the supplied workers.Pool; each builder is independent, so
// the fan-out cannot race.
type accumulator[S spec.Spec] struct {
	spec     S
	pool     *workers.Pool
	builders map[ids.ChapterID]*recordstore.Builder
}

func newAccumulator[S spec.Spec](s S, pool *workers.Pool) *accumulator[S] {
	builders := make(map[ids.ChapterID]*recordstore.Builder, s.NumChapters())
	for _, c := range s.AllChapterIDs() {
		builders[c] = recordstore.NewBuilder(c, s.Partition, s.Merge)
	}
	return &accumulator[S]{spec: s, pool: pool, builders: builders}
}

// insert routes a Tuple into its Chapter's builder.
func (a *accumulator[S]) insert(t extract.Tuple) error {
	b, ok := a.builders[t.Chapter]
	if !ok {
		return fmt.Errorf("publish: extractor yielded unknown chapter %v", t.Chapter)
	}
	return b.Insert(t.Key, t.Value)
}

// finalize materialises, encodes, hashes, and writes every Chapter of
// Volume v whose ChapterID is in only. nil means every ChapterID,
// including those never touched by the extractor, so a Volume is always
// total over the partition space and retrieval can fetch one known CID
// per (volume, chapter). Finalised builders are Reset so the
// accumulator can be reused for the next Volume. Returned entries are
// ascending by ChapterID.
func (a *accumulator[S]) finalize(ctx context.Context, dbRoot string, v ids.VolumeID, only map[ids.ChapterID]bool) ([]manifest.Entry, error) {
	chapters := a.spec.AllChapterIDs()

	type slot struct {
		entry manifest.Entry
		used  bool
	}
	slots := make([]slot, len(chapters))
	jobs := make([]workers.Job, 0, len(chapters))
	slotOf := make([]int, 0, len(chapters))

	for i, c := range chapters {
		if only != nil && !only[c] {
			continue
		}
		i, c := i, c
		slotOf = append(slotOf, i)
		jobs = append(jobs, func(ctx context.Context) error {
			entry, err := a.finalizeChapter(dbRoot, v, c)
			if err != nil {
				return err
			}
			slots[i] = slot{entry: entry, used: true}
			return nil
		})
	}

	for _, err := range a.pool.Run(ctx, jobs) {
		if err != nil {
			return nil, err
		}
	}

	entries := make([]manifest.Entry, 0, len(slotOf))
	for _, i := range slotOf {
		if slots[i].used {
			entries = append(entries, slots[i].entry)
		}
	}

	for _, c := range chapters {
		if only == nil || only[c] {
			a.builders[c].Reset()
		}
	}
	return entries, nil
}

func (a *accumulator[S]) finalizeChapter(dbRoot string, v ids.VolumeID, c ids.ChapterID) (manifest.Entry, error) {
	builder := a.builders[c]
	recs := builder.Freeze()

	chapRecords := make([]chapter.Record, len(recs))
	for i, r := range recs {
		chapRecords[i] = chapter.Record{Key: r.Key, Value: r.Value}
	}

	volStr := a.spec.VolumeIDString(v)
	chapStr := a.spec.ChapterIDString(c)
	frozen := &chapter.Frozen{
		VolumeID:        v,
		VolumeIDString:  volStr,
		ChapterID:       c,
		ChapterIDString: chapStr,
		Records:         chapRecords,
	}

	bounds := codec.Bounds{
		MaxRecords:    a.spec.MaxRecordsPerChapter(),
		MaxKeyBytes:   a.spec.MaxBytesPerKey(),
		MaxValueBytes: a.spec.MaxBytesPerValue(),
	}
	encoded, err := codec.EncodeChapter(frozen, a.spec.ValueCodec(), bounds)
	if err != nil {
		return manifest.Entry{}, fmt.Errorf("publish: encode %s/%s: %w", volStr, chapStr, err)
	}

	dir := filepath.Join(dbRoot, volStr)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return manifest.Entry{}, fmt.Errorf("publish: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, chapStr+chapterFileSuffix)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return manifest.Entry{}, fmt.Errorf("publish: write %s: %w", path, err)
	}

	return manifest.Entry{
		VolumeInterfaceID:  volStr,
		ChapterInterfaceID: chapStr,
		CIDv0:              cid.Of(encoded).String(),
	}, nil
}
