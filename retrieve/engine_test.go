// SPDX-License-Identifier: ISC

package retrieve_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/manifest"
	"github.com/todd-io/todd/publish"
	"github.com/todd-io/todd/retrieve"
	"github.com/todd-io/todd/spec/signatures"
	"github.com/todd-io/todd/toddfault"
)

// fileTransport resolves a CID by reading the Chapter file straight off
// disk, mimicking a local IPFS gateway for tests.
type fileTransport struct {
	byCID map[string]string // cid_v0 -> file path
}

func newFileTransport(dbRoot string, m *manifest.Frozen) *fileTransport {
	t := &fileTransport{byCID: make(map[string]string)}
	for _, e := range m.ChapterCIDs {
		t.byCID[e.CIDv0] = filepath.Join(dbRoot, e.VolumeInterfaceID, e.ChapterInterfaceID+".ssz_snappy")
	}
	return t
}

func (t *fileTransport) Fetch(ctx context.Context, cidv0 string) ([]byte, error) {
	path, ok := t.byCID[cidv0]
	if !ok {
		return nil, fmt.Errorf("no such cid: %s", cidv0)
	}
	return os.ReadFile(path)
}

func publishSignatures(t *testing.T, lines string) (string, *manifest.Frozen) {
	t.Helper()
	rawRoot := t.TempDir()
	dbRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rawRoot, "a.txt"), []byte(lines), 0o644))

	m, err := publish.New(signatures.New(), dbRoot).FullTransformation(context.Background(), rawRoot)
	require.NoError(t, err)
	return dbRoot, m
}

func TestFindReturnsMatchingValueScenarioS3(t *testing.T) {
	dbRoot, m := publishSignatures(t, "dd62ed3e=allowance(address,address)\n")
	eng := retrieve.New(signatures.New(), m, newFileTransport(dbRoot, m))

	key, err := signatures.New().ParseKey("dd62ed3e")
	require.NoError(t, err)

	values, err := eng.Find(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, signatures.Value{Texts: []string{"allowance(address,address)"}}, values[0])
}

func TestFindMissingKeyReturnsEmptyNotError(t *testing.T) {
	dbRoot, m := publishSignatures(t, "dd62ed3e=allowance(address,address)\n")
	eng := retrieve.New(signatures.New(), m, newFileTransport(dbRoot, m))

	key, err := signatures.New().ParseKey("ffffffff")
	require.NoError(t, err)

	values, err := eng.Find(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, values)
}

// TestFindReportsIntegrityViolationButKeepsGoing checks that a
// corrupted Chapter makes Find return an integrity-class error next to
// the values gathered from the other Volumes; with a single Volume
// published here, that value slice is empty.
func TestFindReportsIntegrityViolationButKeepsGoing(t *testing.T) {
	dbRoot, m := publishSignatures(t, "dd62ed3e=allowance(address,address)\n")

	// Corrupt the on-disk Chapter after publication so its bytes no
	// longer match the Manifest's stated CID.
	path := filepath.Join(dbRoot, "volume_000_000_000", "chapter_0xdd.ssz_snappy")
	require.NoError(t, os.WriteFile(path, []byte("corrupted"), 0o644))

	eng := retrieve.New(signatures.New(), m, newFileTransport(dbRoot, m))
	key, err := signatures.New().ParseKey("dd62ed3e")
	require.NoError(t, err)

	values, err := eng.Find(context.Background(), key)
	require.Error(t, err)
	assert.True(t, toddfault.IsErrIntegrity(err))
	assert.Empty(t, values)
}

func TestCheckCompletenessReportsPresent(t *testing.T) {
	dbRoot, m := publishSignatures(t, "dd62ed3e=allowance(address,address)\n")
	eng := retrieve.New(signatures.New(), m, newFileTransport(dbRoot, m))

	report, err := eng.CheckCompleteness(context.Background(), dbRoot)
	require.NoError(t, err)
	assert.Len(t, report, 256)
	for _, status := range report {
		assert.Equal(t, "Present", status.String())
	}
}
