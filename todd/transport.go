// SPDX-License-Identifier: ISC

package todd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/todd-io/todd/integrity"
	"github.com/todd-io/todd/manifest"
	"github.com/todd-io/todd/toddfault"
)

// localTransport fetches a Chapter by reading it straight out of this
// handle's own db_root, keyed by the CID the Manifest already names.
// This is the one transport the engine can provide without an external
// gateway, for a publisher and retriever sharing the same database.
type localTransport struct {
	dbRoot string
	byCID  map[string]manifest.Key
}

func newLocalTransport(dbRoot string, m *manifest.Frozen) *localTransport {
	t := &localTransport{dbRoot: dbRoot, byCID: make(map[string]manifest.Key, len(m.ChapterCIDs))}
	for _, e := range m.ChapterCIDs {
		t.byCID[e.CIDv0] = manifest.Key{VolumeInterfaceID: e.VolumeInterfaceID, ChapterInterfaceID: e.ChapterInterfaceID}
	}
	return t
}

func (t *localTransport) Fetch(ctx context.Context, cidv0 string) ([]byte, error) {
	key, ok := t.byCID[cidv0]
	if !ok {
		return nil, fmt.Errorf("%w: no manifest entry addresses cid %s", toddfault.ErrTransportError, cidv0)
	}
	path := filepath.Join(t.dbRoot, key.VolumeInterfaceID, integrity.ChapterFileName(key.ChapterInterfaceID))
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", toddfault.ErrTransportError, err)
	}
	return b, nil
}
