// SPDX-License-Identifier: ISC

// Package signatures implements the selector→text Spec: RecordKey is a
// 4-byte function/event selector, RecordValue is the sorted,
// de-duplicated list of known text signatures for that selector.
package signatures

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/todd-io/todd/codec"
	"github.com/todd-io/todd/extract"
	extractsignatures "github.com/todd-io/todd/extract/signatures"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/sample"
	"github.com/todd-io/todd/spec"
	"github.com/todd-io/todd/toddfault"
)

// SignaturesPerVolume is the addition-count cadence: a Volume closes
// once this many signatures have been appended to the corpus.
const SignaturesPerVolume = 1000

// NumChapters mirrors the other specs' partition depth.
const NumChapters = 256

// SelectorBytes is the length of an EVM function/event selector.
const SelectorBytes = 4

const (
	maxBytesPerText     = 256
	maxTextsPerRecord   = 256
	databaseInterfaceID = "signatures_mainnet"
	schemasURL          = "https://github.com/perama-v/TODD/blob/main/example_specs/signatures.md"
	specVersion         = "0.1.0"
)

// Value is the RecordValue: a sorted, de-duplicated set of text
// signatures sharing one selector (e.g. "allowance(address,address)").
type Value struct {
	Texts []string
}

// Spec is the signatures DataSpec implementation.
type Spec struct{}

// New constructs the signatures Spec.
func New() Spec { return Spec{} }

func (Spec) NumChapters() int            { return NumChapters }
func (Spec) MaxVolumes() int             { return 1_000_000_000 }
func (Spec) MaxRecordsPerChapter() int   { return SignaturesPerVolume }
func (Spec) MaxBytesPerValue() int       { return maxBytesPerText * maxTextsPerRecord }
func (Spec) MaxBytesPerKey() int         { return SelectorBytes }
func (Spec) DatabaseInterfaceID() string { return databaseInterfaceID }
func (Spec) SchemasURL() string          { return schemasURL }
func (Spec) SpecVersion() string         { return specVersion }

// Partition routes by the selector's first byte.
func (Spec) Partition(key ids.RecordKey) (ids.ChapterID, error) {
	if len(key) != SelectorBytes {
		return 0, fmt.Errorf("%w: selector must be %d bytes, got %d", toddfault.ErrInvalidIdentifier, SelectorBytes, len(key))
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

// ParseKey coerces a user-supplied hex selector string into a RecordKey.
func (Spec) ParseKey(s string) (ids.RecordKey, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", toddfault.ErrInvalidIdentifier, err)
	}
	if len(b) != SelectorBytes {
		return nil, fmt.Errorf("%w: selector must decode to %d bytes, got %d", toddfault.ErrInvalidIdentifier, SelectorBytes, len(b))
	}
	return ids.RecordKey(b), nil
}

// VolumeIDFromSource treats rawPosition as a running addition count and
// buckets it by SignaturesPerVolume.
func (Spec) VolumeIDFromSource(rawPosition uint64) ids.VolumeID {
	return ids.VolumeID((rawPosition / SignaturesPerVolume) * SignaturesPerVolume)
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

// Merge unions two text lists, sorted and de-duplicated.
func (Spec) Merge(existing, incoming ids.RecordValue) (ids.RecordValue, error) {
	e, ok := existing.(Value)
	if !ok {
		return nil, fmt.Errorf("signatures: merge: existing value has wrong type %T", existing)
	}
	n, ok := incoming.(Value)
	if !ok {
		return nil, fmt.Errorf("signatures: merge: incoming value has wrong type %T", incoming)
	}

	seen := make(map[string]struct{}, len(e.Texts)+len(n.Texts))
	var texts []string
	for _, t := range append(append([]string{}, e.Texts...), n.Texts...) {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			texts = append(texts, t)
		}
	}
	sort.Strings(texts)
	return Value{Texts: texts}, nil
}

// ValueCodec returns the binary codec for Value.
func (Spec) ValueCodec() codec.ValueCodec { return valueCodec{} }

// Extractor reads "<selector>=<text;text>" lines from rawRoot.
func (s Spec) Extractor(rawRoot string) (extract.Extractor, error) {
	return extractsignatures.New(rawRoot, s.VolumeIDFromSource, s.Partition, func(texts []string) ids.RecordValue {
		v, _ := s.Merge(Value{}, Value{Texts: texts})
		return v
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
		return nil, fmt.Errorf("signatures: encode: wrong type %T", v)
	}
	var buf []byte
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(val.Texts)))
	buf = append(buf, countBuf[:]...)
	for _, text := range val.Texts {
		buf = appendLenPrefixed(buf, []byte(text))
	}
	return buf, nil
}

func (valueCodec) DecodeValue(b []byte) (ids.RecordValue, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: signatures value truncated", toddfault.ErrDecodeTruncated)
	}
	count := binary.LittleEndian.Uint32(b[:4])
	rest := b[4:]
	texts := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var text []byte
		var err error
		text, rest, err = readLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		texts = append(texts, string(text))
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in signatures value", toddfault.ErrDecodeUnexpectedLength, len(rest))
	}
	return Value{Texts: texts}, nil
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
