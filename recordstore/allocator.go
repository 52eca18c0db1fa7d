// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2017 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recordstore

import (
	"sync"

	"github.com/todd-io/todd/ids"
)

// node is a single entry in a Builder's balanced tree.
type node struct {
	left    *node
	right   *node
	up      *node
	key     ids.RecordKey
	value   ids.RecordValue
	balance int // -1, 0, +1
}

// a process-wide free list: nodes are reclaimed across Builders instead
// of returned to the garbage collector one at a time.
var (
	poolMu sync.Mutex
	pool   *node
)

func newNode(key ids.RecordKey, value ids.RecordValue) *node {
	poolMu.Lock()
	if pool == nil {
		poolMu.Unlock()
		return &node{key: key, value: value}
	}
	n := pool
	pool = n.up
	poolMu.Unlock()

	n.key = key
	n.value = value
	n.balance = 0
	n.left = nil
	n.right = nil
	n.up = nil
	return n
}

func freeNode(n *node) {
	poolMu.Lock()
	n.up = pool
	n.left = nil
	n.right = nil
	n.key = nil
	n.value = nil
	n.balance = 0
	pool = n
	poolMu.Unlock()
}
