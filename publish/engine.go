// SPDX-License-Identifier: ISC

// Package publish implements the Publication engine: it drives an
// Extractor through the per-Volume state machine, finalises Chapters,
// and maintains the Manifest.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bitmark-inc/logger"

	"github.com/todd-io/todd/cid"
	"github.com/todd-io/todd/extract"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/integrity"
	"github.com/todd-io/todd/manifest"
	"github.com/todd-io/todd/spec"
	"github.com/todd-io/todd/toddfault"
	"github.com/todd-io/todd/workers"
)

// ManifestFileName is the well-known manifest file inside a db_root.
const ManifestFileName = "manifest.json"

// DefaultConcurrency bounds per-Volume Chapter fan-out when the caller
// does not override it via WithConcurrency.
const DefaultConcurrency = 16

// Engine runs the Publication pipeline for one Spec instance against one
// on-disk database root.
type Engine[S spec.Spec] struct {
	spec   S
	dbRoot string
	pool   *workers.Pool
	log    *logger.L
	m      metrics
}

// New constructs an Engine writing Chapters and the Manifest under
// dbRoot.
func New[S spec.Spec](s S, dbRoot string) *Engine[S] {
	return &Engine[S]{
		spec:   s,
		dbRoot: dbRoot,
		pool:   workers.New(DefaultConcurrency),
		log:    logger.New("publish"),
		m:      newMetrics(s.DatabaseInterfaceID()),
	}
}

// WithConcurrency overrides the per-Volume Chapter fan-out width.
func (e *Engine[S]) WithConcurrency(n int) *Engine[S] {
	e.pool = workers.New(n)
	return e
}

func (e *Engine[S]) manifestPath() string {
	return filepath.Join(e.dbRoot, ManifestFileName)
}

func (e *Engine[S]) emptyManifest() *manifest.Frozen {
	return &manifest.Frozen{
		SpecVersion:         e.spec.SpecVersion(),
		Schemas:             e.spec.SchemasURL(),
		DatabaseInterfaceID: e.spec.DatabaseInterfaceID(),
	}
}

// FullTransformation publishes every derivable Volume from scratch,
// discarding any existing on-disk Manifest.
func (e *Engine[S]) FullTransformation(ctx context.Context, rawRoot string) (*manifest.Frozen, error) {
	e.log.Infof("full transformation from %s", rawRoot)
	m, err := e.run(ctx, rawRoot, e.emptyManifest(), nil)
	if err != nil {
		e.log.Errorf("full transformation failed: %s", err)
		return nil, err
	}
	if err := m.Save(e.manifestPath()); err != nil {
		return nil, err
	}
	e.log.Infof("full transformation complete, latest volume %s", m.LatestVolumeIdentifier)
	return m, nil
}

// Extend resumes from the on-disk Manifest's latest_volume_identifier and
// publishes new Volumes without touching existing bytes.
func (e *Engine[S]) Extend(ctx context.Context, rawRoot string) (*manifest.Frozen, error) {
	base, err := manifest.Load(e.manifestPath())
	if err != nil {
		return nil, err
	}

	var skipBelow ids.VolumeID
	haveLatest := base.LatestVolumeIdentifier != ""
	if haveLatest {
		skipBelow, err = e.spec.VolumeIDFromString(base.LatestVolumeIdentifier)
		if err != nil {
			return nil, fmt.Errorf("%w: manifest latest_volume_identifier: %s", toddfault.ErrInvalidIdentifier, err)
		}
	}

	skip := func(v ids.VolumeID) bool { return haveLatest && v <= skipBelow }
	e.log.Infof("extending from volume %s", base.LatestVolumeIdentifier)

	m, err := e.run(ctx, rawRoot, base, skip)
	if err != nil {
		e.log.Errorf("extend failed: %s", err)
		return nil, err
	}
	if err := m.Save(e.manifestPath()); err != nil {
		return nil, err
	}
	e.log.Infof("extend complete, latest volume %s", m.LatestVolumeIdentifier)
	return m, nil
}

// GenerateManifest rebuilds the Manifest from the on-disk Chapter tree,
// re-hashing every file, for use after out-of-band file operations.
func (e *Engine[S]) GenerateManifest(ctx context.Context) (*manifest.Frozen, error) {
	entries, err := e.walkChapterTree()
	if err != nil {
		return nil, err
	}

	latest := ""
	if len(entries) > 0 {
		latest = entries[len(entries)-1].VolumeInterfaceID
	}

	m := e.emptyManifest()
	m.LatestVolumeIdentifier = latest
	m.ChapterCIDs = entries

	if err := m.Save(e.manifestPath()); err != nil {
		return nil, err
	}
	e.log.Infof("generated manifest with %d entries", len(entries))
	return m, nil
}

// RepairFromRaw reconciles the Manifest against on-disk Chapters and
// reconstructs any Missing or Corrupt entry from rawRoot, leaving
// unaffected Chapters untouched.
func (e *Engine[S]) RepairFromRaw(ctx context.Context, rawRoot string) (integrity.CompletenessReport, error) {
	m, err := manifest.Load(e.manifestPath())
	if err != nil {
		return nil, err
	}

	before, err := integrity.Check(e.dbRoot, m)
	if err != nil {
		return nil, err
	}

	affected := make(map[string]map[string]bool)
	for key, status := range before {
		if status == integrity.Present {
			continue
		}
		if affected[key.VolumeInterfaceID] == nil {
			affected[key.VolumeInterfaceID] = make(map[string]bool)
		}
		affected[key.VolumeInterfaceID][key.ChapterInterfaceID] = true
	}
	if len(affected) == 0 {
		e.log.Info("repair: nothing affected")
		return before, nil
	}
	e.log.Infof("repair: %d volumes affected", len(affected))

	index := m.Index()
	if err := e.repairRun(ctx, rawRoot, affected, index); err != nil {
		e.log.Errorf("repair failed: %s", err)
		return nil, err
	}

	after, err := integrity.Check(e.dbRoot, m)
	if err != nil {
		return nil, err
	}
	return after, nil
}

// run drives extractor -> accumulator -> manifest for one pass,
// starting from base and skipping any Volume for which skip returns
// true (nil skip means skip none). A Volume accumulates until the
// observed VolumeID changes, is then finalised and appended to the
// Manifest, and is never reopened.
func (e *Engine[S]) run(ctx context.Context, rawRoot string, base *manifest.Frozen, skip func(ids.VolumeID) bool) (*manifest.Frozen, error) {
	extractor, err := e.spec.Extractor(rawRoot)
	if err != nil {
		return nil, err
	}
	defer extractor.Close()

	acc := newAccumulator(e.spec, e.pool)
	out := base
	var haveCurrent bool
	var current ids.VolumeID

	flush := func(v ids.VolumeID) error {
		if !e.spec.CadenceBoundary(v) {
			return fmt.Errorf("%w: volume %s is not at a cadence boundary", toddfault.ErrCadenceGap, e.spec.VolumeIDString(v))
		}
		entries, err := acc.finalize(ctx, e.dbRoot, v, nil)
		if err != nil {
			return err
		}
		out, err = out.Extend(entries, e.spec.VolumeIDString(v))
		if err != nil {
			return err
		}
		e.m.volumesPublished.Inc()
		e.m.chaptersWritten.Add(float64(len(entries)))
		return nil
	}

	for {
		t, err := extractor.Next(ctx)
		if err != nil {
			if errors.Is(err, toddfault.ErrRawSourceExhausted) || err == extract.EOF {
				break
			}
			return nil, err
		}

		if skip != nil && skip(t.Volume) {
			continue
		}

		if haveCurrent && t.Volume < current {
			return nil, fmt.Errorf("%w: observed volume %v after %v", toddfault.ErrCadenceGap, t.Volume, current)
		}
		if !haveCurrent {
			current = t.Volume
			haveCurrent = true
		} else if t.Volume != current {
			if err := flush(current); err != nil {
				return nil, err
			}
			current = t.Volume
		}

		if err := acc.insert(t); err != nil {
			return nil, err
		}
	}

	if haveCurrent {
		if err := flush(current); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// repairRun is run's counterpart restricted to affected (volume,
// chapter) pairs only; it never extends the Manifest, since a correctly
// repaired Chapter reproduces the CID the Manifest already names.
// Only the file bytes change.
func (e *Engine[S]) repairRun(ctx context.Context, rawRoot string, affected map[string]map[string]bool, index map[manifest.Key]string) error {
	extractor, err := e.spec.Extractor(rawRoot)
	if err != nil {
		return err
	}
	defer extractor.Close()

	acc := newAccumulator(e.spec, e.pool)
	var haveCurrent bool
	var current ids.VolumeID

	flush := func(v ids.VolumeID) error {
		volStr := e.spec.VolumeIDString(v)
		chapterSet := affected[volStr]
		if chapterSet == nil {
			return nil
		}
		filter := make(map[ids.ChapterID]bool, len(chapterSet))
		for _, c := range e.spec.AllChapterIDs() {
			if chapterSet[e.spec.ChapterIDString(c)] {
				filter[c] = true
			}
		}
		entries, err := acc.finalize(ctx, e.dbRoot, v, filter)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			want, ok := index[manifest.Key{VolumeInterfaceID: entry.VolumeInterfaceID, ChapterInterfaceID: entry.ChapterInterfaceID}]
			if ok && want != entry.CIDv0 {
				return fmt.Errorf("%w: repaired %s/%s hashes to %s, manifest states %s", toddfault.ErrIntegrityViolation, entry.VolumeInterfaceID, entry.ChapterInterfaceID, entry.CIDv0, want)
			}
		}
		return nil
	}

	for {
		t, err := extractor.Next(ctx)
		if err != nil {
			if errors.Is(err, toddfault.ErrRawSourceExhausted) || err == extract.EOF {
				break
			}
			return err
		}

		if !haveCurrent {
			current = t.Volume
			haveCurrent = true
		} else if t.Volume != current {
			if err := flush(current); err != nil {
				return err
			}
			current = t.Volume
		}

		volStr := e.spec.VolumeIDString(t.Volume)
		chapStr := e.spec.ChapterIDString(t.Chapter)
		if chapterSet, ok := affected[volStr]; !ok || !chapterSet[chapStr] {
			continue
		}
		if err := acc.insert(t); err != nil {
			return err
		}
	}
	if haveCurrent {
		if err := flush(current); err != nil {
			return err
		}
	}
	return nil
}

// walkChapterTree re-reads every Chapter file under dbRoot and returns
// manifest entries sorted (VolumeID ascending, ChapterID ascending), for
// GenerateManifest.
func (e *Engine[S]) walkChapterTree() ([]manifest.Entry, error) {
	volDirs, err := os.ReadDir(e.dbRoot)
	if err != nil {
		return nil, fmt.Errorf("publish: read %s: %w", e.dbRoot, err)
	}

	type volumeDir struct {
		id  ids.VolumeID
		str string
	}
	var volumes []volumeDir
	for _, d := range volDirs {
		if !d.IsDir() {
			continue
		}
		id, err := e.spec.VolumeIDFromString(d.Name())
		if err != nil {
			continue // not a volume directory (e.g. manifest.json)
		}
		volumes = append(volumes, volumeDir{id: id, str: d.Name()})
	}
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].id < volumes[j].id })

	var entries []manifest.Entry
	for _, v := range volumes {
		dir := filepath.Join(e.dbRoot, v.str)
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("publish: read %s: %w", dir, err)
		}

		type chapterFile struct {
			id  ids.ChapterID
			str string
			b   []byte
		}
		var chapters []chapterFile
		for _, f := range files {
			name := f.Name()
			if filepath.Ext(name) != chapterFileSuffix {
				continue
			}
			chapStr := name[:len(name)-len(chapterFileSuffix)]
			id, err := e.spec.ChapterIDFromString(chapStr)
			if err != nil {
				continue
			}
			b, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("publish: read %s: %w", name, err)
			}
			chapters = append(chapters, chapterFile{id: id, str: chapStr, b: b})
		}
		sort.Slice(chapters, func(i, j int) bool { return chapters[i].id < chapters[j].id })

		for _, c := range chapters {
			entries = append(entries, manifest.Entry{
				VolumeInterfaceID:  v.str,
				ChapterInterfaceID: c.str,
				CIDv0:              cid.Of(c.b).String(),
			})
		}
	}
	return entries, nil
}
