// SPDX-License-Identifier: ISC

// Package sample defines the Sample obtainer boundary: the external
// collaborator that fetches canned raw inputs for tests and demos. The
// engine never downloads anything itself.
package sample

import "context"

// Obtainer fetches (or locates, if already cached) a database's sample
// raw input and returns the root directory an Extractor can be opened
// against.
type Obtainer interface {
	Obtain(ctx context.Context, cacheDir string) (rawRoot string, err error)
}
