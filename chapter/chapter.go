// SPDX-License-Identifier: ISC

// Package chapter holds the frozen, on-disk form of a Chapter:
// an immutable, sorted slice of Records tagged with the VolumeID/ChapterID
// it belongs to. The mutable builder lives in package recordstore; Freezing
// is one-way.
package chapter

import "github.com/todd-io/todd/ids"

// Record is a frozen (key, value) pair.
type Record struct {
	Key   ids.RecordKey
	Value ids.RecordValue
}

// Frozen is the immutable, hashable form of a Chapter. VolumeID/ChapterID
// are carried in both their canonical string form (used in the wire
// envelope and file paths) and raw form (used for partition validation).
type Frozen struct {
	VolumeID        ids.VolumeID
	VolumeIDString  string
	ChapterID       ids.ChapterID
	ChapterIDString string
	Records         []Record // sorted ascending by Key, unique
}

// Len returns the number of records, for bound checks.
func (f *Frozen) Len() int { return len(f.Records) }
