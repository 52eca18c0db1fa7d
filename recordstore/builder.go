// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2019 Bitmark Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package recordstore

import (
	"fmt"

	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/toddfault"
)

// PartitionFunc routes a key to the chapter it belongs in.
type PartitionFunc func(ids.RecordKey) (ids.ChapterID, error)

// MergeFunc combines an existing value with an incoming one on a
// duplicate key. Must be commutative and idempotent.
type MergeFunc func(existing, incoming ids.RecordValue) (ids.RecordValue, error)

// Record is a frozen (key, value) pair, the unit Builder.Freeze produces.
type Record struct {
	Key   ids.RecordKey
	Value ids.RecordValue
}

// Builder is the in-memory, mutable form of a Chapter: a balanced,
// key-ordered tree that merges values on duplicate keys instead of
// overwriting them.
type Builder struct {
	root      *node
	count     int
	chapterID ids.ChapterID
	partition PartitionFunc
	merge     MergeFunc
}

// NewBuilder creates an empty Builder for the given ChapterID. Every key
// inserted is validated against partition before being accepted.
func NewBuilder(chapterID ids.ChapterID, partition PartitionFunc, merge MergeFunc) *Builder {
	return &Builder{chapterID: chapterID, partition: partition, merge: merge}
}

// Count returns the number of distinct keys currently held.
func (b *Builder) Count() int { return b.count }

// Insert adds key/value, merging with any existing value under key.
// Returns toddfault.ErrMisroutedRecord if partition(key) != the Builder's
// ChapterID.
func (b *Builder) Insert(key ids.RecordKey, value ids.RecordValue) error {
	c, err := b.partition(key)
	if err != nil {
		return fmt.Errorf("partition key: %w", err)
	}
	if c != b.chapterID {
		return fmt.Errorf("%w: key routes to chapter %v, builder is for %v", toddfault.ErrMisroutedRecord, c, b.chapterID)
	}

	var mergeErr error
	added := false
	b.root, added, _, mergeErr = b.insert(key, value, b.root)
	if mergeErr != nil {
		return mergeErr
	}
	if added {
		b.count++
	}
	return nil
}

// insert is the classic AVL insertion with parent pointers, except that
// a duplicate key merges via b.merge instead of overwriting.
func (b *Builder) insert(key ids.RecordKey, value ids.RecordValue, p *node) (*node, bool, bool, error) {
	h := false
	if p == nil {
		return newNode(key, value), true, true, nil
	}
	added := false
	var err error
	switch key.Compare(p.key) {
	case +1: // key > p.key: descend right
		p.right, added, h, err = b.insert(key, value, p.right)
		if err != nil {
			return p, added, h, err
		}
		if h {
			if p.right != nil {
				p.right.up = p
			}
			if p.balance == -1 {
				p.balance = 0
				h = false
			} else if p.balance == 0 {
				p.balance = 1
			} else {
				p = rotateRight(p)
				h = false
			}
		}
	case -1: // key < p.key: descend left
		p.left, added, h, err = b.insert(key, value, p.left)
		if err != nil {
			return p, added, h, err
		}
		if h {
			if p.left != nil {
				p.left.up = p
			}
			if p.balance == 1 {
				p.balance = 0
				h = false
			} else if p.balance == 0 {
				p.balance = -1
			} else {
				p = rotateLeft(p)
				h = false
			}
		}
	default:
		merged, mergeErr := b.merge(p.value, value)
		if mergeErr != nil {
			return p, false, false, mergeErr
		}
		p.value = merged
	}
	return p, added, h, nil
}

// rotateRight rebalances a subtree that has grown on the right.
func rotateRight(p *node) *node {
	p1 := p.right
	if p1.balance == 1 {
		// single RR rotation
		p.right = p1.left
		p1.left = p
		p.balance = 0
		p1.up = p.up
		p.up = p1
		if p.right != nil {
			p.right.up = p
		}
		p1.balance = 0
		return p1
	}
	// double RL rotation
	p2 := p1.left
	p1.left = p2.right
	p2.right = p1
	p.right = p2.left
	p2.left = p
	if p2.balance == 1 {
		p.balance = -1
	} else {
		p.balance = 0
	}
	if p2.balance == -1 {
		p1.balance = 1
	} else {
		p1.balance = 0
	}
	if p.right != nil {
		p.right.up = p
	}
	if p1.left != nil {
		p1.left.up = p1
	}
	p2.up = p.up
	p.up = p2
	p1.up = p2
	p2.balance = 0
	return p2
}

// rotateLeft rebalances a subtree that has grown on the left.
func rotateLeft(p *node) *node {
	p1 := p.left
	if p1.balance == -1 {
		// single LL rotation
		p.left = p1.right
		p1.right = p
		p.balance = 0
		p1.up = p.up
		p.up = p1
		if p.left != nil {
			p.left.up = p
		}
		p1.balance = 0
		return p1
	}
	// double LR rotation
	p2 := p1.right
	p1.right = p2.left
	p2.left = p1
	p.left = p2.right
	p2.right = p
	if p2.balance == -1 {
		p.balance = 1
	} else {
		p.balance = 0
	}
	if p2.balance == 1 {
		p1.balance = -1
	} else {
		p1.balance = 0
	}
	if p.left != nil {
		p.left.up = p
	}
	if p1.right != nil {
		p1.right.up = p1
	}
	p2.up = p.up
	p.up = p2
	p1.up = p2
	p2.balance = 0
	return p2
}

// Freeze walks the tree in order and returns its records sorted ascending
// by key bytes, the Chapter's immutable, on-disk form.
func (b *Builder) Freeze() []Record {
	records := make([]Record, 0, b.count)
	for n := first(b.root); n != nil; n = next(n) {
		records = append(records, Record{Key: n.key, Value: n.value})
	}
	return records
}

// Reset discards all records, returning their nodes to the shared
// allocator pool so the next Volume's Builder for this Chapter can reuse
// them; the publication engine keeps one Builder per ChapterID across
// Volumes rather than allocating a fresh tree each time.
func (b *Builder) Reset() {
	freeAll(b.root)
	b.root = nil
	b.count = 0
}

func freeAll(n *node) {
	if n == nil {
		return
	}
	freeAll(n.left)
	freeAll(n.right)
	freeNode(n)
}
