// SPDX-License-Identifier: ISC

package todd_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/config"
	"github.com/todd-io/todd/integrity"
	"github.com/todd-io/todd/spec/nametags"
	"github.com/todd-io/todd/spec/signatures"
	"github.com/todd-io/todd/todd"
)

func writeRawSignatures(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// TestHandleEndToEnd exercises the composed handle: publish via
// FullTransformation, then answer a point query with Find, served
// through the handle's own on-disk db_root (no injected transport).
func TestHandleEndToEnd(t *testing.T) {
	rawRoot := t.TempDir()
	writeRawSignatures(t, rawRoot, "a.txt", "dd62ed3e=allowance(address,address)\n")

	dbRoot := t.TempDir()
	h, err := todd.Init(signatures.New(), config.SignaturesMainnet, config.Custom(dbRoot))
	require.NoError(t, err)
	assert.Equal(t, dbRoot, h.DBRoot())

	ctx := context.Background()
	m, err := h.FullTransformation(ctx, rawRoot)
	require.NoError(t, err)
	assert.Len(t, m.ChapterCIDs, 256)

	key, err := signatures.New().ParseKey("dd62ed3e")
	require.NoError(t, err)

	values, err := h.Find(ctx, key)
	require.NoError(t, err)
	require.Len(t, values, 1)

	report, err := h.CheckCompleteness(ctx)
	require.NoError(t, err)
	for _, status := range report {
		assert.Equal(t, integrity.Present, status)
	}
}

// TestNametagMergeEndToEnd publishes two nametag entries for the same
// address and checks that Find returns a single merged value: the one
// non-empty name kept, tags unioned and sorted.
func TestNametagMergeEndToEnd(t *testing.T) {
	const address = "0xffff03000000000000000000000000000000ee44"

	rawRoot := t.TempDir()
	lines := `{"address": "` + address + `", "name": "HitBTC Token: Deployer", "tags": ["contract-deployer"]}
{"address": "` + address + `", "tags": ["opensea-verified"]}
`
	require.NoError(t, os.WriteFile(filepath.Join(rawRoot, "tags.json"), []byte(lines), 0o644))

	dbRoot := t.TempDir()
	h, err := todd.Init(nametags.New(), config.NameTagsMainnet, config.Custom(dbRoot))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = h.FullTransformation(ctx, rawRoot)
	require.NoError(t, err)

	key, err := nametags.New().ParseKey(address)
	require.NoError(t, err)

	values, err := h.Find(ctx, key)
	require.NoError(t, err)
	require.Len(t, values, 1)
	v := values[0].(nametags.Value)
	assert.Equal(t, "HitBTC Token: Deployer", v.Name)
	assert.Equal(t, []string{"contract-deployer", "opensea-verified"}, v.Tags)
}

// TestExtendPreservesManifestPrefix checks, through the handle, that
// Extend keeps the existing chapter_cids prefix byte-for-byte.
func TestExtendPreservesManifestPrefix(t *testing.T) {
	rawRoot := t.TempDir()
	writeRawSignatures(t, rawRoot, "a.txt", "dd62ed3e=allowance(address,address)\n")

	dbRoot := t.TempDir()
	h, err := todd.Init(signatures.New(), config.SignaturesMainnet, config.Custom(dbRoot))
	require.NoError(t, err)

	ctx := context.Background()
	m1, err := h.FullTransformation(ctx, rawRoot)
	require.NoError(t, err)

	writeRawSignatures(t, rawRoot, "b.txt", "12345678=foo()\n")
	// FullTransformation would republish volume_000_000_000; Extend must
	// instead skip everything already covered by the on-disk Manifest.
	// The fresh raw root's only tuple sits at addition position 0, i.e.
	// in volume_000_000_000, so Extend skips it and the prefix is all
	// that must survive.
	extendRoot := t.TempDir()
	writeRawSignatures(t, extendRoot, "b.txt", "12345678=foo()\n")

	m2, err := h.Extend(ctx, extendRoot)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(m2.ChapterCIDs), len(m1.ChapterCIDs))
	assert.Equal(t, m1.ChapterCIDs, m2.ChapterCIDs[:len(m1.ChapterCIDs)])
}
