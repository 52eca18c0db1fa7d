// SPDX-License-Identifier: ISC

package signatures_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/extract/signatures"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/toddfault"
)

func firstBytePartition(key ids.RecordKey) (ids.ChapterID, error) {
	return ids.ChapterID(key[0]), nil
}

func volumeOf(position uint64) ids.VolumeID {
	return ids.VolumeID((position / 1000) * 1000)
}

func valueOf(texts []string) ids.RecordValue { return texts }

func TestReaderParsesSelectorLines(t *testing.T) {
	rawRoot := t.TempDir()
	lines := "dd62ed3e=allowance(address,address)\n\n0x095ea7b3=approve(address,uint256);approve2(address)\n"
	require.NoError(t, os.WriteFile(filepath.Join(rawRoot, "sigs.txt"), []byte(lines), 0o644))

	e, err := signatures.New(rawRoot, volumeOf, firstBytePartition, valueOf)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()

	t1, err := e.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids.ChapterID(0xdd), t1.Chapter)
	assert.Equal(t, ids.RecordKey{0xdd, 0x62, 0xed, 0x3e}, t1.Key)
	assert.Equal(t, []string{"allowance(address,address)"}, t1.Value)

	// blank line skipped; 0x prefix stripped; texts split on ';'
	t2, err := e.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids.ChapterID(0x09), t2.Chapter)
	assert.Equal(t, []string{"approve(address,uint256)", "approve2(address)"}, t2.Value)

	_, err = e.Next(ctx)
	assert.ErrorIs(t, err, toddfault.ErrRawSourceExhausted)
}

func TestReaderSurfacesMissingEquals(t *testing.T) {
	rawRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rawRoot, "sigs.txt"), []byte("dd62ed3e allowance\n"), 0o644))

	e, err := signatures.New(rawRoot, volumeOf, firstBytePartition, valueOf)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, toddfault.ErrRawSourceMalformed)
}

func TestReaderSurfacesBadSelector(t *testing.T) {
	rawRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rawRoot, "sigs.txt"), []byte("dd62=short()\n"), 0o644))

	e, err := signatures.New(rawRoot, volumeOf, firstBytePartition, valueOf)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Next(context.Background())
	assert.ErrorIs(t, err, toddfault.ErrRawSourceMalformed)
}

func TestVolumeAdvancesWithPosition(t *testing.T) {
	rawRoot := t.TempDir()
	var lines []byte
	for i := 0; i < 1001; i++ {
		lines = append(lines, "dd62ed3e=pad()\n"...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(rawRoot, "sigs.txt"), lines, 0o644))

	e, err := signatures.New(rawRoot, volumeOf, firstBytePartition, valueOf)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	var last ids.VolumeID
	for i := 0; i < 1001; i++ {
		tup, err := e.Next(ctx)
		require.NoError(t, err)
		last = tup.Volume
	}
	assert.Equal(t, ids.VolumeID(1000), last)
}
