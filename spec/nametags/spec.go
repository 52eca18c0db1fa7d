// SPDX-License-Identifier: ISC

// Package nametags implements the address-to-labels Spec: RecordKey is
// a 20-byte address, RecordValue is a {Name, Tags} pair.
package nametags

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/todd-io/todd/codec"
	"github.com/todd-io/todd/extract"
	extractnametags "github.com/todd-io/todd/extract/nametags"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/sample"
	"github.com/todd-io/todd/spec"
	"github.com/todd-io/todd/toddfault"
)

// EntriesPerVolume is the addition-count cadence: a Volume closes once
// this many nametag entries have been appended to the corpus.
const EntriesPerVolume = 1000

// NumChapters mirrors address_appearance_index's partition depth.
const NumChapters = 256

// AddressBytes is the length of an EVM address.
const AddressBytes = 20

const (
	databaseInterfaceID = "nametags_mainnet"
	schemasURL          = "https://github.com/perama-v/TODD/blob/main/example_specs/nametag.md"
	specVersion         = "0.1.0"
	maxBytesPerValue    = 1 << 16
)

// Value is the RecordValue: a display name plus a set of free-form tags.
type Value struct {
	Name string
	Tags []string
}

// Spec is the nametags DataSpec implementation.
type Spec struct{}

// New constructs the nametags Spec.
func New() Spec { return Spec{} }

func (Spec) NumChapters() int            { return NumChapters }
func (Spec) MaxVolumes() int             { return 1_000_000_000 }
func (Spec) MaxRecordsPerChapter() int   { return EntriesPerVolume }
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

// ParseKey coerces a user-supplied hex address string into a RecordKey:
// lower-case the hex, strip one optional leading 0x, require exactly
// AddressBytes bytes, and never silently drop a malformed entry.
func (Spec) ParseKey(s string) (ids.RecordKey, error) {
	return normalizeAddress(s)
}

func normalizeAddress(s string) (ids.RecordKey, error) {
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMalformed, err)
	}
	if len(b) != AddressBytes {
		return nil, fmt.Errorf("%w: address must decode to %d bytes, got %d", toddfault.ErrRawSourceMalformed, AddressBytes, len(b))
	}
	return ids.RecordKey(b), nil
}

// VolumeIDFromSource treats rawPosition as a running addition count and
// buckets it by EntriesPerVolume.
func (Spec) VolumeIDFromSource(rawPosition uint64) ids.VolumeID {
	return ids.VolumeID((rawPosition / EntriesPerVolume) * EntriesPerVolume)
}

// CadenceBoundary is always true: the Publication engine already flushes
// on a VolumeIDFromSource transition.
func (Spec) CadenceBoundary(ids.VolumeID) bool { return true }

// VolumeIDString renders "volume_000_001_000".
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

// Merge keeps the non-empty Name (the lexicographically smaller one when
// both sides carry a different non-empty Name) and unions Tags, sorted
// and deduplicated; commutative and idempotent.
func (Spec) Merge(existing, incoming ids.RecordValue) (ids.RecordValue, error) {
	e, ok := existing.(Value)
	if !ok {
		return nil, fmt.Errorf("nametags: merge: existing value has wrong type %T", existing)
	}
	n, ok := incoming.(Value)
	if !ok {
		return nil, fmt.Errorf("nametags: merge: incoming value has wrong type %T", incoming)
	}

	name := e.Name
	if name == "" || (n.Name != "" && n.Name < name) {
		name = n.Name
	}

	seen := make(map[string]struct{}, len(e.Tags)+len(n.Tags))
	var tags []string
	for _, t := range append(append([]string{}, e.Tags...), n.Tags...) {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return Value{Name: name, Tags: tags}, nil
}

// ValueCodec returns the binary codec for Value.
func (Spec) ValueCodec() codec.ValueCodec { return valueCodec{} }

// Extractor reads newline-delimited JSON nametag records from rawRoot.
func (s Spec) Extractor(rawRoot string) (extract.Extractor, error) {
	return extractnametags.New(rawRoot, s.VolumeIDFromSource, s.Partition, normalizeAddress, func(name string, tags []string) ids.RecordValue {
		return Value{Name: name, Tags: tags}
	})
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
		return nil, fmt.Errorf("nametags: encode: wrong type %T", v)
	}
	var buf []byte
	buf = appendLenPrefixed(buf, []byte(val.Name))
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(val.Tags)))
	buf = append(buf, countBuf[:]...)
	for _, tag := range val.Tags {
		buf = appendLenPrefixed(buf, []byte(tag))
	}
	return buf, nil
}

func (valueCodec) DecodeValue(b []byte) (ids.RecordValue, error) {
	name, rest, err := readLenPrefixed(b)
	if err != nil {
		return nil, err
	}
	if len(rest) < 4 {
		return nil, fmt.Errorf("%w: nametags value truncated", toddfault.ErrDecodeTruncated)
	}
	count := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	tags := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var tag []byte
		tag, rest, err = readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		tags = append(tags, string(tag))
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in nametags value", toddfault.ErrDecodeUnexpectedLength, len(rest))
	}
	return Value{Name: string(name), Tags: tags}, nil
}

func appendLenPrefixed(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readLenPrefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("%w: length prefix", toddfault.ErrDecodeTruncated)
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("%w: field length %d exceeds remaining %d", toddfault.ErrDecodeOverflow, n, len(b))
	}
	return b[:n], b[n:], nil
}
