// SPDX-License-Identifier: ISC

package signatures_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/spec/signatures"
)

func TestMergeScenarioS3(t *testing.T) {
	s := signatures.New()
	key, err := s.ParseKey("0xdd62ed3e")
	require.NoError(t, err)

	a := signatures.Value{Texts: []string{"allowance(address,address)"}}
	merged, err := s.Merge(signatures.Value{}, a)
	require.NoError(t, err)
	mv := merged.(signatures.Value)
	assert.Equal(t, []string{"allowance(address,address)"}, mv.Texts)

	chapter, err := s.Partition(key)
	require.NoError(t, err)
	assert.Equal(t, ids.ChapterID(0xdd), chapter)

	again, err := s.Merge(merged, merged)
	require.NoError(t, err)
	assert.Equal(t, merged, again)
}

func TestMergeUnionsCollidingTexts(t *testing.T) {
	s := signatures.New()
	a := signatures.Value{Texts: []string{"foo()"}}
	b := signatures.Value{Texts: []string{"bar()"}}

	merged, err := s.Merge(a, b)
	require.NoError(t, err)
	mv := merged.(signatures.Value)
	assert.Equal(t, []string{"bar()", "foo()"}, mv.Texts)
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	s := signatures.New()

	key, err := s.ParseKey("0XDD62ED3E")
	require.NoError(t, err)
	assert.Equal(t, byte(0xdd), key[0])

	_, err = s.ParseKey("not-hex")
	assert.Error(t, err)

	_, err = s.ParseKey("0xdd62")
	assert.Error(t, err)
}

func TestVolumeAndChapterStringRoundTrip(t *testing.T) {
	s := signatures.New()

	vs := s.VolumeIDString(2000)
	assert.Equal(t, "volume_000_002_000", vs)
	v, err := s.VolumeIDFromString(vs)
	require.NoError(t, err)
	assert.Equal(t, ids.VolumeID(2000), v)

	cs := s.ChapterIDString(0xdd)
	assert.Equal(t, "chapter_0xdd", cs)
	c, err := s.ChapterIDFromString(cs)
	require.NoError(t, err)
	assert.Equal(t, ids.ChapterID(0xdd), c)
}

func TestValueCodecRoundTrip(t *testing.T) {
	s := signatures.New()
	vc := s.ValueCodec()
	v := signatures.Value{Texts: []string{"a()", "b()", "c()"}}

	encoded, err := vc.EncodeValue(v)
	require.NoError(t, err)
	decoded, err := vc.DecodeValue(encoded)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

func TestSampleObtainerReturnsPopulatedCache(t *testing.T) {
	cacheDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "sample_signatures.txt"), []byte("dd62ed3e=allowance(address,address)\n"), 0o644))

	root, err := signatures.New().SampleObtainer().Obtain(context.Background(), cacheDir)
	require.NoError(t, err)
	assert.Equal(t, cacheDir, root)
}

func TestAllChapterIDsCoversFullSpace(t *testing.T) {
	s := signatures.New()
	chapters := s.AllChapterIDs()
	assert.Len(t, chapters, 256)
}
