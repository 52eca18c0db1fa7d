// SPDX-License-Identifier: ISC

// Package integrity reconciles on-disk Chapter files against the Manifest
// they should match. Check reports, per (VolumeID,
// ChapterID), whether the file is Present, Missing, or Corrupt; repair
// itself is driven by the publish package, which re-derives affected
// Chapters from raw input.
package integrity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/todd-io/todd/cid"
	"github.com/todd-io/todd/manifest"
)

// Status classifies one on-disk Chapter file against its manifest entry.
type Status int

const (
	Present Status = iota
	Missing
	Corrupt
)

func (s Status) String() string {
	switch s {
	case Present:
		return "Present"
	case Missing:
		return "Missing"
	case Corrupt:
		return "Corrupt"
	default:
		return "Unknown"
	}
}

// VolChapterKey identifies one Manifest row; it is the same shape as
// manifest.Key since both name a (volume, chapter) pair.
type VolChapterKey = manifest.Key

// CompletenessReport maps every Manifest-listed (volume, chapter) to its
// on-disk status.
type CompletenessReport map[VolChapterKey]Status

// ChapterFileName is the on-disk name of a Chapter, minus
// its directory.
func ChapterFileName(chapterInterfaceID string) string {
	return chapterInterfaceID + ".ssz_snappy"
}

// FetchOutcome records whether a retrieval-side fetch-and-verify of one
// (volume, chapter) succeeded.
type FetchOutcome int

const (
	Fetched FetchOutcome = iota
	FetchFailed
)

// FetchReport is ObtainRelevantData's result: per required (volume,
// chapter), whether the Retrieval engine fetched and verified it, and
// the error when it did not.
type FetchReport struct {
	Outcomes map[VolChapterKey]FetchOutcome
	Errors   map[VolChapterKey]error
}

// Check walks every entry in m and classifies dbRoot's corresponding
// file.
func Check(dbRoot string, m *manifest.Frozen) (CompletenessReport, error) {
	report := make(CompletenessReport, len(m.ChapterCIDs))
	for _, e := range m.ChapterCIDs {
		key := VolChapterKey{VolumeInterfaceID: e.VolumeInterfaceID, ChapterInterfaceID: e.ChapterInterfaceID}

		want, err := cid.Parse(e.CIDv0)
		if err != nil {
			return nil, fmt.Errorf("integrity: manifest entry %s/%s: %w", e.VolumeInterfaceID, e.ChapterInterfaceID, err)
		}

		path := filepath.Join(dbRoot, e.VolumeInterfaceID, ChapterFileName(e.ChapterInterfaceID))
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				report[key] = Missing
				continue
			}
			return nil, fmt.Errorf("integrity: read %s: %w", path, err)
		}

		if cid.Of(b) != want {
			report[key] = Corrupt
			continue
		}
		report[key] = Present
	}
	return report, nil
}
