// SPDX-License-Identifier: ISC

// Package retrieve implements the Retrieval engine: it routes a user
// key to the required Chapters across every known Volume, fetches each
// by CID through an injected Transport, verifies the hash, and answers
// point queries.
package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bitmark-inc/logger"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/todd-io/todd/chapter"
	"github.com/todd-io/todd/cid"
	"github.com/todd-io/todd/codec"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/integrity"
	"github.com/todd-io/todd/manifest"
	"github.com/todd-io/todd/spec"
	"github.com/todd-io/todd/toddfault"
)

// cacheTTL bounds how long a decoded Chapter stays in the session
// cache. The cache is purely an in-memory, per-session optimisation;
// nothing is persisted.
const cacheTTL = 5 * time.Minute

// Engine answers point queries against one Manifest for one Spec
// instance.
type Engine[S spec.Spec] struct {
	spec      S
	manifest  *manifest.Frozen
	index     map[manifest.Key]string
	transport Transport
	cache     *gocache.Cache
	log       *logger.L
	m         metrics
}

// New constructs a retrieval Engine over an already-loaded Manifest.
func New[S spec.Spec](s S, m *manifest.Frozen, t Transport) *Engine[S] {
	return &Engine[S]{
		spec:      s,
		manifest:  m,
		index:     m.Index(),
		transport: t,
		cache:     gocache.New(cacheTTL, 2*cacheTTL),
		log:       logger.New("retrieve"),
		m:         newMetrics(s.DatabaseInterfaceID()),
	}
}

type volume struct {
	id  ids.VolumeID
	str string
}

// sortedVolumes returns every distinct Volume named in the Manifest,
// ascending.
func (e *Engine[S]) sortedVolumes() []volume {
	seen := make(map[string]bool)
	var out []volume
	for _, entry := range e.manifest.ChapterCIDs {
		if seen[entry.VolumeInterfaceID] {
			continue
		}
		seen[entry.VolumeInterfaceID] = true
		id, err := e.spec.VolumeIDFromString(entry.VolumeInterfaceID)
		if err != nil {
			continue
		}
		out = append(out, volume{id: id, str: entry.VolumeInterfaceID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (e *Engine[S]) bounds() codec.Bounds {
	return codec.Bounds{
		MaxRecords:    e.spec.MaxRecordsPerChapter(),
		MaxKeyBytes:   e.spec.MaxBytesPerKey(),
		MaxValueBytes: e.spec.MaxBytesPerValue(),
	}
}

// fetchChapter resolves, fetches, verifies, and decodes one Chapter,
// serving from the session cache when present.
func (e *Engine[S]) fetchChapter(ctx context.Context, volStr, chapStr string) (*chapter.Frozen, error) {
	cacheKey := volStr + "/" + chapStr
	if cached, ok := e.cache.Get(cacheKey); ok {
		return cached.(*chapter.Frozen), nil
	}

	cidv0, ok := e.index[manifest.Key{VolumeInterfaceID: volStr, ChapterInterfaceID: chapStr}]
	if !ok {
		return nil, fmt.Errorf("%w: manifest has no entry for %s/%s", toddfault.ErrInvalidIdentifier, volStr, chapStr)
	}

	want, err := cid.Parse(cidv0)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest cid %s: %s", toddfault.ErrInvalidIdentifier, cidv0, err)
	}

	raw, err := e.transport.Fetch(ctx, cidv0)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %s", toddfault.ErrTransportError, cidv0, err)
	}

	if cid.Of(raw) != want {
		e.m.integrityViolations.Inc()
		return nil, fmt.Errorf("%w: %s/%s: fetched bytes hash to a different cid than %s", toddfault.ErrIntegrityViolation, volStr, chapStr, cidv0)
	}

	frozen, err := codec.DecodeChapter(raw, e.spec.ValueCodec(), e.bounds())
	if err != nil {
		return nil, err
	}
	frozen.ChapterIDString = chapStr

	e.cache.Set(cacheKey, frozen, cacheTTL)
	e.m.chaptersFetched.Inc()
	return frozen, nil
}

// Find answers a point query: the matching value from every Volume that
// contains key, in VolumeID ascending order. A missing key is never an
// error; it simply contributes no value for that Volume.
// A per-Chapter integrity failure does not abort the query: results
// from unaffected Volumes are still returned, alongside an aggregate
// error.
func (e *Engine[S]) Find(ctx context.Context, key ids.RecordKey) ([]ids.RecordValue, error) {
	timer := prometheus.NewTimer(e.m.findSeconds)
	defer timer.ObserveDuration()

	chapterID, err := e.spec.Partition(key)
	if err != nil {
		return nil, err
	}
	chapStr := e.spec.ChapterIDString(chapterID)

	volumes := e.sortedVolumes()
	var values []ids.RecordValue
	var failures int
	var firstErr error
	for _, v := range volumes {
		frozen, err := e.fetchChapter(ctx, v.str, chapStr)
		if err != nil {
			if toddfault.IsErrIntegrity(err) {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				e.log.Errorf("find: %s", err)
				continue
			}
			return values, err
		}

		i := sort.Search(len(frozen.Records), func(i int) bool {
			return bytes.Compare(frozen.Records[i].Key, key) >= 0
		})
		if i < len(frozen.Records) && bytes.Equal(frozen.Records[i].Key, key) {
			values = append(values, frozen.Records[i].Value)
		}
	}

	if failures > 0 {
		return values, fmt.Errorf("retrieve: %d of %d volumes failed integrity verification: %w", failures, len(volumes), firstErr)
	}
	return values, nil
}

// ObtainRelevantData pre-fetches and verifies every Chapter that could
// answer a query against any of keys, across every known Volume,
// populating the session cache and reporting per-(volume, chapter)
// outcomes.
func (e *Engine[S]) ObtainRelevantData(ctx context.Context, keys []ids.RecordKey) (*integrity.FetchReport, error) {
	required := make(map[integrity.VolChapterKey]bool)
	volumes := e.sortedVolumes()
	for _, key := range keys {
		chapterID, err := e.spec.Partition(key)
		if err != nil {
			return nil, err
		}
		chapStr := e.spec.ChapterIDString(chapterID)
		for _, v := range volumes {
			required[integrity.VolChapterKey{VolumeInterfaceID: v.str, ChapterInterfaceID: chapStr}] = true
		}
	}

	report := &integrity.FetchReport{
		Outcomes: make(map[integrity.VolChapterKey]integrity.FetchOutcome, len(required)),
		Errors:   make(map[integrity.VolChapterKey]error),
	}
	for key := range required {
		if _, err := e.fetchChapter(ctx, key.VolumeInterfaceID, key.ChapterInterfaceID); err != nil {
			report.Outcomes[key] = integrity.FetchFailed
			report.Errors[key] = err
			continue
		}
		report.Outcomes[key] = integrity.Fetched
	}
	return report, nil
}

// CheckCompleteness reports, per Manifest-listed (volume, chapter),
// whether its on-disk file is Present, Missing, or Corrupt.
func (e *Engine[S]) CheckCompleteness(ctx context.Context, dbRoot string) (integrity.CompletenessReport, error) {
	return integrity.Check(dbRoot, e.manifest)
}
