// SPDX-License-Identifier: ISC

// Package manifest holds the append-only global table mapping
// (VolumeID, ChapterID) pairs to content identifiers. A Frozen manifest
// is the on-disk, canonical JSON form; struct field declaration order
// fixes the on-the-wire key order, since encoding/json preserves it.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/todd-io/todd/cid"
	"github.com/todd-io/todd/toddfault"
)

// Entry is one row of chapter_cids: a (volume, chapter) pair and the
// CIDv0 of the Chapter file it names.
type Entry struct {
	VolumeInterfaceID  string `json:"volume_interface_id"`
	ChapterInterfaceID string `json:"chapter_interface_id"`
	CIDv0              string `json:"cid_v0"`
}

// Frozen is the on-disk Manifest. Field order is the wire order.
type Frozen struct {
	SpecVersion            string  `json:"spec_version"`
	Schemas                string  `json:"schemas"`
	DatabaseInterfaceID    string  `json:"database_interface_id"`
	LatestVolumeIdentifier string  `json:"latest_volume_identifier"`
	ChapterCIDs            []Entry `json:"chapter_cids"`
}

// Key identifies one manifest row for lookup purposes.
type Key struct {
	VolumeInterfaceID  string
	ChapterInterfaceID string
}

// Load reads and parses a manifest.json from path.
func Load(path string) (*Frozen, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMissing, err)
	}
	var m Frozen
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %s", toddfault.ErrDecodeUnexpectedLength, err)
	}
	return &m, nil
}

// Save writes m to path as canonical, indented JSON.
func (m *Frozen) Save(path string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// Extend appends newEntries to the manifest and sets newLatest. The
// existing chapter_cids prefix is preserved untouched; any new entry that
// names a (volume, chapter) pair already present would replace history,
// so it fails with ErrManifestRewrite instead. It never mutates m; it
// returns a new Frozen.
func (m *Frozen) Extend(newEntries []Entry, newLatest string) (*Frozen, error) {
	existing := make(map[Key]struct{}, len(m.ChapterCIDs))
	for _, e := range m.ChapterCIDs {
		existing[Key{VolumeInterfaceID: e.VolumeInterfaceID, ChapterInterfaceID: e.ChapterInterfaceID}] = struct{}{}
	}
	for _, e := range newEntries {
		k := Key{VolumeInterfaceID: e.VolumeInterfaceID, ChapterInterfaceID: e.ChapterInterfaceID}
		if _, dup := existing[k]; dup {
			return nil, fmt.Errorf("%w: %s/%s is already published", toddfault.ErrManifestRewrite, e.VolumeInterfaceID, e.ChapterInterfaceID)
		}
	}

	next := &Frozen{
		SpecVersion:            m.SpecVersion,
		Schemas:                m.Schemas,
		DatabaseInterfaceID:    m.DatabaseInterfaceID,
		LatestVolumeIdentifier: newLatest,
		ChapterCIDs:            make([]Entry, 0, len(m.ChapterCIDs)+len(newEntries)),
	}
	next.ChapterCIDs = append(next.ChapterCIDs, m.ChapterCIDs...)
	next.ChapterCIDs = append(next.ChapterCIDs, newEntries...)
	return next, nil
}

// Index builds an O(1) (volume, chapter) -> cid_v0 lookup, for repeated
// use across a retrieval session.
func (m *Frozen) Index() map[Key]string {
	idx := make(map[Key]string, len(m.ChapterCIDs))
	for _, e := range m.ChapterCIDs {
		idx[Key{VolumeInterfaceID: e.VolumeInterfaceID, ChapterInterfaceID: e.ChapterInterfaceID}] = e.CIDv0
	}
	return idx
}

// CID canonically re-encodes the manifest as compact JSON with every
// object's keys sorted, and content-addresses it the same way a Chapter
// is addressed, so publishers can advertise a whole publication run by
// one hash.
func (m *Frozen) CID() (cid.CID, []byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return cid.CID{}, nil, fmt.Errorf("manifest: encode: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return cid.CID{}, nil, fmt.Errorf("manifest: canonicalise: %w", err)
	}
	if b, err = json.Marshal(generic); err != nil {
		return cid.CID{}, nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return cid.Of(b), b, nil
}
