// SPDX-License-Identifier: ISC

// Package spec defines the capability bundle that lets the
// generic publication and retrieval engines stay polymorphic over a family
// of data specifications (address-to-transactions, address-to-labels,
// selector-to-text) without any engine code naming a concrete database.
package spec

import (
	"github.com/todd-io/todd/codec"
	"github.com/todd-io/todd/extract"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/sample"
)

// Spec bundles everything database-specific so the
// Publication and Retrieval engines stay generic.
type Spec interface {
	// NumChapters is the size of the closed ChapterID set.
	NumChapters() int
	MaxVolumes() int
	MaxRecordsPerChapter() int
	MaxBytesPerValue() int
	MaxBytesPerKey() int

	DatabaseInterfaceID() string
	SchemasURL() string
	SpecVersion() string

	// Partition is the pure routing function: RecordKey -> ChapterID.
	Partition(key ids.RecordKey) (ids.ChapterID, error)
	AllChapterIDs() []ids.ChapterID

	// ParseKey coerces user input into a RecordKey.
	ParseKey(s string) (ids.RecordKey, error)

	// VolumeIDFromSource assigns an incoming raw-source position to a Volume.
	VolumeIDFromSource(rawPosition uint64) ids.VolumeID
	// CadenceBoundary reports whether v is where the accumulator must flush.
	CadenceBoundary(v ids.VolumeID) bool

	VolumeIDString(ids.VolumeID) string
	VolumeIDFromString(string) (ids.VolumeID, error)
	ChapterIDString(ids.ChapterID) string
	ChapterIDFromString(string) (ids.ChapterID, error)

	// Merge combines an existing value with an incoming one on a
	// duplicate key. Must be commutative and idempotent.
	Merge(existing, incoming ids.RecordValue) (ids.RecordValue, error)

	// ValueCodec serialises this Spec's concrete RecordValue type.
	ValueCodec() codec.ValueCodec

	// Extractor opens a fresh Extractor over rawRoot.
	Extractor(rawRoot string) (extract.Extractor, error)
	// SampleObtainer returns this Spec's canned-input fetcher.
	SampleObtainer() sample.Obtainer
}
