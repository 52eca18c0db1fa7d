// SPDX-License-Identifier: ISC

package addressappearance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/spec/addressappearance"
)

func TestPartitionUsesFirstByte(t *testing.T) {
	s := addressappearance.New()
	key, err := s.ParseKey("0xf154a39fc0e1a6d4f00d00000000000000000000")
	require.NoError(t, err)
	chapter, err := s.Partition(key)
	require.NoError(t, err)
	assert.Equal(t, ids.ChapterID(0xf1), chapter)
}

func TestVolumeAndChapterStringRoundTrip(t *testing.T) {
	s := addressappearance.New()
	v := ids.VolumeID(11_200_000)
	str := s.VolumeIDString(v)
	assert.Equal(t, "volume_011_200_000", str)
	back, err := s.VolumeIDFromString(str)
	require.NoError(t, err)
	assert.Equal(t, v, back)

	c := ids.ChapterID(0x1f)
	cstr := s.ChapterIDString(c)
	assert.Equal(t, "chapter_0x1f", cstr)
	cback, err := s.ChapterIDFromString(cstr)
	require.NoError(t, err)
	assert.Equal(t, c, cback)

	_, err = s.VolumeIDFromString("not_a_volume")
	assert.Error(t, err)
	_, err = s.ChapterIDFromString("chapter_0xzz")
	assert.Error(t, err)
}

func TestMergeUnionsAndDedupsAppearances(t *testing.T) {
	s := addressappearance.New()
	a := addressappearance.Value{Appearances: []addressappearance.Appearance{{Block: 5, TxIndex: 1}, {Block: 1, TxIndex: 0}}}
	b := addressappearance.Value{Appearances: []addressappearance.Appearance{{Block: 1, TxIndex: 0}, {Block: 3, TxIndex: 2}}}

	merged, err := s.Merge(a, b)
	require.NoError(t, err)
	mv := merged.(addressappearance.Value)
	require.Len(t, mv.Appearances, 3)
	assert.Equal(t, uint32(1), mv.Appearances[0].Block)
	assert.Equal(t, uint32(3), mv.Appearances[1].Block)
	assert.Equal(t, uint32(5), mv.Appearances[2].Block)

	// idempotent
	again, err := s.Merge(merged, merged)
	require.NoError(t, err)
	assert.Equal(t, merged, again)

	// commutative
	reverse, err := s.Merge(b, a)
	require.NoError(t, err)
	assert.Equal(t, merged, reverse)
}

func TestValueCodecRoundTrip(t *testing.T) {
	s := addressappearance.New()
	vc := s.ValueCodec()
	v := addressappearance.Value{Appearances: []addressappearance.Appearance{{Block: 42, TxIndex: 3}, {Block: 43, TxIndex: 0}}}

	encoded, err := vc.EncodeValue(v)
	require.NoError(t, err)
	decoded, err := vc.DecodeValue(encoded)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestAllChapterIDsCoversFullSpace(t *testing.T) {
	s := addressappearance.New()
	all := s.AllChapterIDs()
	assert.Len(t, all, addressappearance.NumChapters)
	assert.Equal(t, ids.ChapterID(0x00), all[0])
	assert.Equal(t, ids.ChapterID(0xff), all[255])
}
