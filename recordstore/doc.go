// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package recordstore is the in-memory Chapter builder: a deduplicated,
// key-ordered collection of (RecordKey, RecordValue) pairs with
// spec-defined merge semantics on duplicate keys.
//
// The balanced tree that backs Builder is an AVL tree with parent
// pointers (described in Algorithms + Data Structures = Programs).
// Insertion on an existing key calls the Spec's Merge function instead
// of overwriting, and Freeze walks the tree in order to produce the
// sorted, immutable record slice a Chapter is encoded from. There is no
// delete operation for single records; once frozen, a Builder is either
// Reset as a whole for the next Volume or discarded.
//
// An individual Builder is not safe for concurrent use; callers that
// run one worker per Chapter already give each Builder its own
// goroutine.
package recordstore
