// SPDX-License-Identifier: ISC

// Package todd exposes the single database handle: the maintainer
// operations (FullTransformation, Extend, RepairFromRaw,
// GenerateManifest, Manifest) and the user operations
// (ObtainRelevantData, CheckCompleteness, Find) over one Spec instance
// and one on-disk database root. It is pure composition over the
// publish and retrieve engines; no new algorithm lives here.
package todd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/todd-io/todd/config"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/integrity"
	"github.com/todd-io/todd/manifest"
	"github.com/todd-io/todd/publish"
	"github.com/todd-io/todd/retrieve"
	"github.com/todd-io/todd/sample"
	"github.com/todd-io/todd/spec"
)

// Todd composes the Publication and Retrieval engines behind one
// handle.
type Todd[S spec.Spec] struct {
	spec   S
	dbRoot string
	pub    *publish.Engine[S]
}

// Init constructs a Todd handle for kind, resolving its on-disk root via
// dir. It does not require an existing Manifest; maintainer operations
// create one as needed.
func Init[S spec.Spec](s S, kind config.DataKind, dir config.DirNature) (*Todd[S], error) {
	root, err := dir.Resolve(kind)
	if err != nil {
		return nil, fmt.Errorf("todd: init: %w", err)
	}
	return &Todd[S]{
		spec:   s,
		dbRoot: root,
		pub:    publish.New(s, root),
	}, nil
}

// DBRoot returns the resolved on-disk database root this handle operates
// against.
func (t *Todd[S]) DBRoot() string { return t.dbRoot }

// FullTransformation publishes every derivable Volume from scratch.
func (t *Todd[S]) FullTransformation(ctx context.Context, rawRoot string) (*manifest.Frozen, error) {
	return t.pub.FullTransformation(ctx, rawRoot)
}

// Extend resumes from the on-disk Manifest and publishes new Volumes
// without touching existing bytes.
func (t *Todd[S]) Extend(ctx context.Context, rawRoot string) (*manifest.Frozen, error) {
	return t.pub.Extend(ctx, rawRoot)
}

// RepairFromRaw reconciles on-disk Chapters against the Manifest and
// reconstructs any Missing or Corrupt entry from rawRoot.
func (t *Todd[S]) RepairFromRaw(ctx context.Context, rawRoot string) (integrity.CompletenessReport, error) {
	return t.pub.RepairFromRaw(ctx, rawRoot)
}

// GenerateManifest rebuilds the Manifest from the on-disk Chapter tree.
func (t *Todd[S]) GenerateManifest(ctx context.Context) (*manifest.Frozen, error) {
	return t.pub.GenerateManifest(ctx)
}

// Manifest loads and returns the current on-disk Manifest.
func (t *Todd[S]) Manifest() (*manifest.Frozen, error) {
	return manifest.Load(t.manifestPath())
}

func (t *Todd[S]) manifestPath() string {
	return filepath.Join(t.dbRoot, publish.ManifestFileName)
}

// retrieveEngine loads the current Manifest and builds a retrieval
// Engine over transport. User operations are stateless across calls:
// decoded Chapters only need to live for the duration of a query, so
// each call loads a fresh Manifest and gets its own session cache.
func (t *Todd[S]) retrieveEngine(transport retrieve.Transport) (*retrieve.Engine[S], error) {
	m, err := t.Manifest()
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = newLocalTransport(t.dbRoot, m)
	}
	return retrieve.New(t.spec, m, transport), nil
}

// ObtainRelevantData pre-fetches and verifies every Chapter that could
// answer a query against any of keys, via transport (or, if nil, this
// handle's own on-disk db_root, so a same-machine caller can still
// retrieve without an IPFS/HTTP gateway).
func (t *Todd[S]) ObtainRelevantData(ctx context.Context, keys []ids.RecordKey, transport retrieve.Transport) (*integrity.FetchReport, error) {
	eng, err := t.retrieveEngine(transport)
	if err != nil {
		return nil, err
	}
	return eng.ObtainRelevantData(ctx, keys)
}

// CheckCompleteness reports, per Manifest-listed (volume, chapter),
// whether its on-disk file is Present, Missing, or Corrupt.
func (t *Todd[S]) CheckCompleteness(ctx context.Context) (integrity.CompletenessReport, error) {
	eng, err := t.retrieveEngine(nil)
	if err != nil {
		return nil, err
	}
	return eng.CheckCompleteness(ctx, t.dbRoot)
}

// Find answers a point query against the local on-disk database,
// returning the matching value from every Volume that contains key, in
// VolumeID ascending order.
func (t *Todd[S]) Find(ctx context.Context, key ids.RecordKey) ([]ids.RecordValue, error) {
	eng, err := t.retrieveEngine(nil)
	if err != nil {
		return nil, err
	}
	return eng.Find(ctx, key)
}

// FindRemote answers a point query fetching Chapters through transport
// rather than this handle's own db_root, for a reader who has no local
// copy of the database yet.
func (t *Todd[S]) FindRemote(ctx context.Context, key ids.RecordKey, transport retrieve.Transport) ([]ids.RecordValue, error) {
	eng, err := t.retrieveEngine(transport)
	if err != nil {
		return nil, err
	}
	return eng.Find(ctx, key)
}

// ObtainSample fetches (or locates, if already cached) this Spec's
// canned sample raw input, for test/demo flows, via the Spec's own
// SampleObtainer.
func (t *Todd[S]) ObtainSample(ctx context.Context, cacheDir string) (string, error) {
	var obt sample.Obtainer = t.spec.SampleObtainer()
	return obt.Obtain(ctx, cacheDir)
}
