// SPDX-License-Identifier: ISC

// Package unchained reads the Unchained Index chunk binary format and
// streams it as extract.Tuple values. Each chunk file is a 4-byte
// magic, a 1-byte version, an n_addresses/n_appearances uint32 LE
// header pair, an address table of (20-byte address, offset uint32,
// count uint32) entries, and an appearance table of (block uint32,
// index uint32) LE entries. This reader accepts any
// internally-consistent header rather than checking a magic constant; a
// real deployment pins the Unchained Index's published magic bytes.
//
// This package has no dependency on any concrete Spec: the caller
// supplies the address length, the partition function, the
// block→VolumeID function, and the (block, index)→RecordValue
// constructor, so addressappearance.Spec can inject itself without an
// import cycle.
package unchained

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bitmark-inc/logger"

	"github.com/todd-io/todd/extract"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/toddfault"
)

const (
	magicLen   = 4
	versionLen = 1
)

// PartitionFunc routes an address RecordKey to a ChapterID.
type PartitionFunc func(ids.RecordKey) (ids.ChapterID, error)

// VolumeFromBlock maps a block height to its owning VolumeID.
type VolumeFromBlock func(block uint64) ids.VolumeID

// ValueOf builds a spec-specific RecordValue for a single appearance.
type ValueOf func(block, index uint32) ids.RecordValue

type addressEntry struct {
	address ids.RecordKey
	offset  uint32
	count   uint32
}

type appearance struct {
	block uint32
	index uint32
}

type chunkExtractor struct {
	addressBytes    int
	partition       PartitionFunc
	volumeFromBlock VolumeFromBlock
	valueOf         ValueOf
	log             *logger.L

	files     []string
	fileIndex int

	addresses    []addressEntry
	appearances  []appearance
	addressIndex int
	appIndex     int
}

// New opens a chunkExtractor over every chunk file directly inside
// rawRoot, visited in sorted filename order (a stand-in for the
// Unchained Index's own canonical chunk ordering).
func New(rawRoot string, addressBytes int, partition PartitionFunc, volumeFromBlock VolumeFromBlock, valueOf ValueOf) (extract.Extractor, error) {
	log := logger.New("unchained")
	entries, err := os.ReadDir(rawRoot)
	if err != nil {
		log.Errorf("raw source root %s: %s", rawRoot, err)
		return nil, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMissing, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(rawRoot, e.Name()))
		}
	}
	sort.Strings(files)
	log.Infof("opened %s: %d chunk files", rawRoot, len(files))
	return &chunkExtractor{
		addressBytes:    addressBytes,
		partition:       partition,
		volumeFromBlock: volumeFromBlock,
		valueOf:         valueOf,
		log:             log,
		files:           files,
	}, nil
}

func (c *chunkExtractor) loadNextFile() error {
	for c.fileIndex < len(c.files) {
		path := c.files[c.fileIndex]
		c.fileIndex++
		data, err := os.ReadFile(path)
		if err != nil {
			c.log.Errorf("read chunk %s: %s", path, err)
			return fmt.Errorf("%w: %s: %s", toddfault.ErrRawSourceMissing, path, err)
		}
		addrs, apps, err := c.parseChunk(data)
		if err != nil {
			c.log.Errorf("malformed chunk %s: %s", path, err)
			return fmt.Errorf("%w: %s: %s", toddfault.ErrRawSourceMalformed, path, err)
		}
		if len(addrs) == 0 {
			continue
		}
		c.addresses = addrs
		c.appearances = apps
		c.addressIndex = 0
		c.appIndex = 0
		return nil
	}
	return io.EOF
}

func (c *chunkExtractor) parseChunk(data []byte) ([]addressEntry, []appearance, error) {
	hdrLen := magicLen + versionLen + 4 + 4
	if len(data) < hdrLen {
		return nil, nil, fmt.Errorf("truncated header")
	}
	nAddresses := binary.LittleEndian.Uint32(data[magicLen+versionLen : magicLen+versionLen+4])
	nAppearances := binary.LittleEndian.Uint32(data[magicLen+versionLen+4 : hdrLen])

	off := hdrLen
	addrEntryLen := c.addressBytes + 4 + 4
	addrs := make([]addressEntry, 0, nAddresses)
	for i := uint32(0); i < nAddresses; i++ {
		if off+addrEntryLen > len(data) {
			return nil, nil, fmt.Errorf("truncated address table")
		}
		addr := make([]byte, c.addressBytes)
		copy(addr, data[off:off+c.addressBytes])
		offset := binary.LittleEndian.Uint32(data[off+c.addressBytes : off+c.addressBytes+4])
		count := binary.LittleEndian.Uint32(data[off+c.addressBytes+4 : off+addrEntryLen])
		addrs = append(addrs, addressEntry{address: ids.RecordKey(addr), offset: offset, count: count})
		off += addrEntryLen
	}

	apps := make([]appearance, 0, nAppearances)
	for i := uint32(0); i < nAppearances; i++ {
		if off+8 > len(data) {
			return nil, nil, fmt.Errorf("truncated appearance table")
		}
		block := binary.LittleEndian.Uint32(data[off : off+4])
		index := binary.LittleEndian.Uint32(data[off+4 : off+8])
		apps = append(apps, appearance{block: block, index: index})
		off += 8
	}

	return addrs, apps, nil
}

// Next yields one Tuple per (address, appearance) pair, advancing
// through the current address's appearance range before moving to the
// next address, and loading the next chunk file once the current one is
// exhausted.
func (c *chunkExtractor) Next(ctx context.Context) (extract.Tuple, error) {
	for {
		select {
		case <-ctx.Done():
			return extract.Tuple{}, ctx.Err()
		default:
		}

		if c.addressIndex >= len(c.addresses) {
			if err := c.loadNextFile(); err != nil {
				return extract.Tuple{}, extract.AsExhausted(err)
			}
		}

		entry := c.addresses[c.addressIndex]
		if c.appIndex >= int(entry.count) {
			c.addressIndex++
			c.appIndex = 0
			continue
		}

		appIdx := int(entry.offset) + c.appIndex
		if appIdx >= len(c.appearances) {
			c.log.Errorf("address entry references out-of-range appearance %d", appIdx)
			return extract.Tuple{}, fmt.Errorf("%w: address entry references out-of-range appearance %d", toddfault.ErrRawSourceMalformed, appIdx)
		}
		app := c.appearances[appIdx]
		c.appIndex++

		chapterID, err := c.partition(entry.address)
		if err != nil {
			c.log.Errorf("partition address: %s", err)
			return extract.Tuple{}, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMalformed, err)
		}

		return extract.Tuple{
			Volume:  c.volumeFromBlock(uint64(app.block)),
			Chapter: chapterID,
			Key:     entry.address,
			Value:   c.valueOf(app.block, app.index),
		}, nil
	}
}

func (c *chunkExtractor) Close() error { return nil }
