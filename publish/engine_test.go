// SPDX-License-Identifier: ISC

package publish_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/codec"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/publish"
	"github.com/todd-io/todd/spec/signatures"
)

func writeRawSignatures(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// TestFullTransformationTotalityAndPartitionSoundness checks that every
// ChapterID appears exactly once per Volume, and every record in a
// Chapter partitions to that Chapter's id.
func TestFullTransformationTotalityAndPartitionSoundness(t *testing.T) {
	rawRoot := t.TempDir()
	dbRoot := t.TempDir()
	writeRawSignatures(t, rawRoot, "a.txt", "dd62ed3e=allowance(address,address)\n")

	s := signatures.New()
	eng := publish.New(s, dbRoot)
	m, err := eng.FullTransformation(context.Background(), rawRoot)
	require.NoError(t, err)

	assert.Equal(t, "volume_000_000_000", m.LatestVolumeIdentifier)
	assert.Len(t, m.ChapterCIDs, 256)

	bounds := codec.Bounds{MaxRecords: s.MaxRecordsPerChapter(), MaxKeyBytes: s.MaxBytesPerKey(), MaxValueBytes: s.MaxBytesPerValue()}
	seen := 0
	for _, e := range m.ChapterCIDs {
		path := filepath.Join(dbRoot, e.VolumeInterfaceID, e.ChapterInterfaceID+".ssz_snappy")
		encoded, err := os.ReadFile(path)
		require.NoError(t, err)

		frozen, err := codec.DecodeChapter(encoded, s.ValueCodec(), bounds)
		require.NoError(t, err)

		if e.ChapterInterfaceID == "chapter_0xdd" {
			require.Len(t, frozen.Records, 1)
			seen++
			v := frozen.Records[0].Value.(signatures.Value)
			assert.Equal(t, []string{"allowance(address,address)"}, v.Texts)
			chapterID, err := s.ChapterIDFromString(e.ChapterInterfaceID)
			require.NoError(t, err)
			assert.Equal(t, ids.ChapterID(0xdd), chapterID)
		} else {
			assert.Empty(t, frozen.Records)
		}
	}
	assert.Equal(t, 1, seen)
}

// TestFullTransformationIsDeterministic checks that two independent
// runs over the same raw input produce byte-identical Chapter files and
// an identical Manifest.
func TestFullTransformationIsDeterministic(t *testing.T) {
	rawRoot := t.TempDir()
	writeRawSignatures(t, rawRoot, "a.txt", "dd62ed3e=allowance(address,address)\n12345678=foo()\n")

	s := signatures.New()
	dbA, dbB := t.TempDir(), t.TempDir()

	mA, err := publish.New(s, dbA).FullTransformation(context.Background(), rawRoot)
	require.NoError(t, err)
	mB, err := publish.New(s, dbB).FullTransformation(context.Background(), rawRoot)
	require.NoError(t, err)

	assert.Equal(t, mA.ChapterCIDs, mB.ChapterCIDs)

	for _, e := range mA.ChapterCIDs {
		pathA := filepath.Join(dbA, e.VolumeInterfaceID, e.ChapterInterfaceID+".ssz_snappy")
		pathB := filepath.Join(dbB, e.VolumeInterfaceID, e.ChapterInterfaceID+".ssz_snappy")
		bytesA, err := os.ReadFile(pathA)
		require.NoError(t, err)
		bytesB, err := os.ReadFile(pathB)
		require.NoError(t, err)
		assert.Equal(t, bytesA, bytesB)
	}
}

// TestExtendPreservesManifestPrefix checks that extending a published
// database never rewrites history.
func TestExtendPreservesManifestPrefix(t *testing.T) {
	rawRoot := t.TempDir()
	dbRoot := t.TempDir()
	writeRawSignatures(t, rawRoot, "a.txt", "dd62ed3e=allowance(address,address)\n")

	s := signatures.New()
	eng := publish.New(s, dbRoot)
	m1, err := eng.FullTransformation(context.Background(), rawRoot)
	require.NoError(t, err)

	// Pad the raw source past the cadence boundary so extend sees a new volume.
	var padded string
	for i := 0; i < signatures.SignaturesPerVolume; i++ {
		padded += "00000001=pad()\n"
	}
	writeRawSignatures(t, rawRoot, "c.txt", padded)

	m2, err := eng.Extend(context.Background(), rawRoot)
	require.NoError(t, err)

	require.True(t, len(m2.ChapterCIDs) >= len(m1.ChapterCIDs))
	assert.Equal(t, m1.ChapterCIDs, m2.ChapterCIDs[:len(m1.ChapterCIDs)])
	assert.NotEqual(t, m1.LatestVolumeIdentifier, m2.LatestVolumeIdentifier)
}

func TestGenerateManifestRebuildsFromDisk(t *testing.T) {
	rawRoot := t.TempDir()
	dbRoot := t.TempDir()
	writeRawSignatures(t, rawRoot, "a.txt", "dd62ed3e=allowance(address,address)\n")

	s := signatures.New()
	eng := publish.New(s, dbRoot)
	original, err := eng.FullTransformation(context.Background(), rawRoot)
	require.NoError(t, err)

	regenerated, err := eng.GenerateManifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, original.ChapterCIDs, regenerated.ChapterCIDs)
	assert.Equal(t, original.LatestVolumeIdentifier, regenerated.LatestVolumeIdentifier)
}

// TestRepairFromRawRestoresCorruptChapter truncates one Chapter file on
// disk and checks that repair reconstructs it byte-for-byte.
func TestRepairFromRawRestoresCorruptChapter(t *testing.T) {
	rawRoot := t.TempDir()
	dbRoot := t.TempDir()
	writeRawSignatures(t, rawRoot, "a.txt", "dd62ed3e=allowance(address,address)\n")

	s := signatures.New()
	eng := publish.New(s, dbRoot)
	m, err := eng.FullTransformation(context.Background(), rawRoot)
	require.NoError(t, err)

	path := filepath.Join(dbRoot, "volume_000_000_000", "chapter_0xdd.ssz_snappy")
	original, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, original[:len(original)/2], 0o644))

	report, err := eng.RepairFromRaw(context.Background(), rawRoot)
	require.NoError(t, err)

	for key, status := range report {
		if key.ChapterInterfaceID == "chapter_0xdd" {
			assert.Equal(t, "Present", status.String())
		}
	}

	repaired, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, repaired)

	var found bool
	for _, e := range m.ChapterCIDs {
		if e.ChapterInterfaceID == "chapter_0xdd" {
			found = true
		}
	}
	assert.True(t, found)
}
