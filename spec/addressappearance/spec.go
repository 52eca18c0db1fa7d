// SPDX-License-Identifier: ISC

// Package addressappearance implements the address→transactions Spec:
// RecordKey is a 20-byte address, RecordValue is the de-duplicated,
// ascending list of (block, txIndex) pairs in which that address
// appeared.
package addressappearance

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/todd-io/todd/codec"
	"github.com/todd-io/todd/extract"
	"github.com/todd-io/todd/extract/unchained"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/sample"
	"github.com/todd-io/todd/spec"
	"github.com/todd-io/todd/toddfault"
)

// BlocksPerVolume is the block-range width of one Volume.
const BlocksPerVolume = 100_000

// NumChapters is 16^2: chapters are keyed by the first byte (two hex
// chars) of the address.
const NumChapters = 256

// AddressBytes is the length of an EVM address.
const AddressBytes = 20

const (
	maxRecordsPerChapter = 1_073_741_824
	maxBytesPerValue     = 1 << 16 // bounded by the codec's uint16 length field
	databaseInterfaceID  = "address_appearance_index_mainnet"
	schemasURL           = "https://github.com/perama-v/address-appearance-index-specs"
	specVersion          = "0.1.0"
)

// Appearance is one (block, txIndex) occurrence of an address.
type Appearance struct {
	Block   uint32
	TxIndex uint32
}

// Value is the RecordValue: a de-duplicated, ascending list of Appearances.
type Value struct {
	Appearances []Appearance
}

func (a Appearance) less(b Appearance) bool {
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	return a.TxIndex < b.TxIndex
}

// Spec is the addressappearance DataSpec implementation.
type Spec struct{}

// New constructs the address-appearance Spec.
func New() Spec { return Spec{} }

func (Spec) NumChapters() int            { return NumChapters }
func (Spec) MaxVolumes() int             { return 1_000_000_000 }
func (Spec) MaxRecordsPerChapter() int   { return maxRecordsPerChapter }
func (Spec) MaxBytesPerValue() int       { return maxBytesPerValue }
func (Spec) MaxBytesPerKey() int         { return AddressBytes }
func (Spec) DatabaseInterfaceID() string { return databaseInterfaceID }
func (Spec) SchemasURL() string          { return schemasURL }
func (Spec) SpecVersion() string         { return specVersion }

// Partition routes by the address's first byte.
func (Spec) Partition(key ids.RecordKey) (ids.ChapterID, error) {
	if len(key) != AddressBytes {
		return 0, fmt.Errorf("%w: address must be %d bytes, got %d", toddfault.ErrInvalidIdentifier, AddressBytes, len(key))
	}
	return ids.ChapterID(key[0]), nil
}

// AllChapterIDs enumerates the full 0x00..0xFF partition space.
func (Spec) AllChapterIDs() []ids.ChapterID {
	out := make([]ids.ChapterID, NumChapters)
	for i := range out {
		out[i] = ids.ChapterID(i)
	}
	return out
}

// ParseKey coerces a user-supplied hex address string into a RecordKey.
func (Spec) ParseKey(s string) (ids.RecordKey, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", toddfault.ErrInvalidIdentifier, err)
	}
	if len(b) != AddressBytes {
		return nil, fmt.Errorf("%w: address must decode to %d bytes, got %d", toddfault.ErrInvalidIdentifier, AddressBytes, len(b))
	}
	return ids.RecordKey(b), nil
}

// VolumeIDFromSource maps a block height to its Volume's oldest block.
func (Spec) VolumeIDFromSource(block uint64) ids.VolumeID {
	return ids.VolumeID((block / BlocksPerVolume) * BlocksPerVolume)
}

// CadenceBoundary is true once every block in [v, v+BlocksPerVolume) has
// potentially been seen; the Publication engine flushes on each change
// of VolumeIDFromSource, so this is simply "always" from the Spec's
// perspective; the engine detects the transition itself.
func (Spec) CadenceBoundary(ids.VolumeID) bool { return true }

// VolumeIDString renders the Volume's oldest block as a zero-padded
// digit triplet, e.g. "volume_011_200_000".
func (Spec) VolumeIDString(v ids.VolumeID) string {
	return "volume_" + triplet(uint32(v))
}

// VolumeIDFromString reverses VolumeIDString.
func (Spec) VolumeIDFromString(s string) (ids.VolumeID, error) {
	rest := strings.TrimPrefix(s, "volume_")
	if rest == s {
		return 0, fmt.Errorf("%w: %q missing volume_ prefix", toddfault.ErrInvalidIdentifier, s)
	}
	digits := strings.ReplaceAll(rest, "_", "")
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", toddfault.ErrInvalidIdentifier, err)
	}
	v := ids.VolumeID(n)
	if (Spec{}).VolumeIDString(v) != s {
		return 0, fmt.Errorf("%w: %q does not round-trip", toddfault.ErrInvalidIdentifier, s)
	}
	return v, nil
}

// ChapterIDString renders "chapter_0x1f".
func (Spec) ChapterIDString(c ids.ChapterID) string {
	return "chapter_0x" + hex.EncodeToString([]byte{byte(c)})
}

// ChapterIDFromString reverses ChapterIDString.
func (Spec) ChapterIDFromString(s string) (ids.ChapterID, error) {
	rest := strings.TrimPrefix(s, "chapter_0x")
	if rest == s || len(rest) != 2 {
		return 0, fmt.Errorf("%w: %q is not a valid chapter id", toddfault.ErrInvalidIdentifier, s)
	}
	b, err := hex.DecodeString(rest)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("%w: %q is not a valid chapter id", toddfault.ErrInvalidIdentifier, s)
	}
	c := ids.ChapterID(b[0])
	if (Spec{}).ChapterIDString(c) != s {
		return 0, fmt.Errorf("%w: %q does not round-trip", toddfault.ErrInvalidIdentifier, s)
	}
	return c, nil
}

// Merge unions two appearance lists, deduplicating identical
// (block, txIndex) pairs and re-sorting ascending; commutative and
// idempotent.
func (Spec) Merge(existing, incoming ids.RecordValue) (ids.RecordValue, error) {
	e, ok := existing.(Value)
	if !ok {
		return nil, fmt.Errorf("addressappearance: merge: existing value has wrong type %T", existing)
	}
	n, ok := incoming.(Value)
	if !ok {
		return nil, fmt.Errorf("addressappearance: merge: incoming value has wrong type %T", incoming)
	}

	seen := make(map[Appearance]struct{}, len(e.Appearances)+len(n.Appearances))
	merged := make([]Appearance, 0, len(e.Appearances)+len(n.Appearances))
	for _, a := range e.Appearances {
		if _, dup := seen[a]; !dup {
			seen[a] = struct{}{}
			merged = append(merged, a)
		}
	}
	for _, a := range n.Appearances {
		if _, dup := seen[a]; !dup {
			seen[a] = struct{}{}
			merged = append(merged, a)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].less(merged[j]) })
	return Value{Appearances: merged}, nil
}

// ValueCodec returns the binary codec for Value.
func (Spec) ValueCodec() codec.ValueCodec { return valueCodec{} }

// Extractor opens an Unchained Index chunk reader over rawRoot. A chunk
// walks its address table, not block order, so the reader is wrapped to
// re-impose non-decreasing VolumeID order before the publication engine
// sees it.
func (s Spec) Extractor(rawRoot string) (extract.Extractor, error) {
	inner, err := unchained.New(rawRoot, AddressBytes, s.Partition, s.VolumeIDFromSource, func(block, index uint32) ids.RecordValue {
		return Value{Appearances: []Appearance{{Block: block, TxIndex: index}}}
	})
	if err != nil {
		return nil, err
	}
	return extract.NewBuffering(inner), nil
}

// SampleObtainer returns the canned-sample fetcher for this Spec.
func (Spec) SampleObtainer() sample.Obtainer { return newSampleObtainer() }

func triplet(n uint32) string {
	s := fmt.Sprintf("%09d", n)
	return s[0:3] + "_" + s[3:6] + "_" + s[6:9]
}

var _ spec.Spec = Spec{}

type valueCodec struct{}

func (valueCodec) EncodeValue(v ids.RecordValue) ([]byte, error) {
	val, ok := v.(Value)
	if !ok {
		return nil, fmt.Errorf("addressappearance: encode: wrong type %T", v)
	}
	buf := make([]byte, 4+8*len(val.Appearances))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(val.Appearances)))
	for i, a := range val.Appearances {
		off := 4 + i*8
		binary.LittleEndian.PutUint32(buf[off:off+4], a.Block)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], a.TxIndex)
	}
	return buf, nil
}

func (valueCodec) DecodeValue(b []byte) (ids.RecordValue, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: appearance value truncated", toddfault.ErrDecodeTruncated)
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	want := 4 + 8*int(n)
	if len(b) != want {
		return nil, fmt.Errorf("%w: appearance value length %d, want %d", toddfault.ErrDecodeUnexpectedLength, len(b), want)
	}
	out := make([]Appearance, n)
	for i := range out {
		off := 4 + i*8
		out[i] = Appearance{
			Block:   binary.LittleEndian.Uint32(b[off : off+4]),
			TxIndex: binary.LittleEndian.Uint32(b[off+4 : off+8]),
		}
	}
	return Value{Appearances: out}, nil
}
