// SPDX-License-Identifier: ISC

package retrieve

import "context"

// Transport resolves a CIDv0 to the bytes it addresses: IPFS, an HTTP
// gateway, or a local cache. Implementations live outside this engine
// and are injected by the caller.
type Transport interface {
	Fetch(ctx context.Context, cidv0 string) ([]byte, error)
}
