// SPDX-License-Identifier: ISC

// Package nametags reads newline-delimited JSON nametag records and
// streams them as extract.Tuple values. Each line is
// {"address": "0x...", "name": "...", "tags": [...]}; "name" and "tags"
// are both optional (zero or one name, zero or more tags).
//
// This package has no dependency on any concrete Spec: the caller
// supplies the address-key normaliser, the partition function, and the
// VolumeID-from-position function, so nametags.Spec can inject itself
// without an import cycle.
package nametags

import (
	"bufio"
	"context"
	"encoding/json"
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

// PartitionFunc routes an address RecordKey to a ChapterID.
type PartitionFunc func(ids.RecordKey) (ids.ChapterID, error)

// VolumeFromPosition maps the running addition count to its VolumeID.
type VolumeFromPosition func(position uint64) ids.VolumeID

// NormalizeKey turns a raw address string into a RecordKey (lower-cased
// hex, one optional 0x prefix stripped, fixed byte length).
type NormalizeKey func(string) (ids.RecordKey, error)

// ValueOf builds a spec-specific RecordValue from a parsed name/tags pair.
type ValueOf func(name string, tags []string) ids.RecordValue

type rawLine struct {
	Address string   `json:"address"`
	Name    *string  `json:"name"`
	Tags    []string `json:"tags"`
}

type nameTagExtractor struct {
	volumeFromPosition VolumeFromPosition
	partition          PartitionFunc
	normalize          NormalizeKey
	valueOf            ValueOf
	log                *logger.L

	files     []string
	fileIndex int
	scanner   *bufio.Scanner
	current   *os.File
	position  uint64
}

// New opens a line reader over every regular file directly inside
// rawRoot, visited in sorted filename order.
func New(rawRoot string, volumeFromPosition VolumeFromPosition, partition PartitionFunc, normalize NormalizeKey, valueOf ValueOf) (extract.Extractor, error) {
	log := logger.New("nametags")
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
	log.Infof("opened %s: %d nametag files", rawRoot, len(files))
	return &nameTagExtractor{
		volumeFromPosition: volumeFromPosition,
		partition:          partition,
		normalize:          normalize,
		valueOf:            valueOf,
		log:                log,
		files:              files,
	}, nil
}

func (e *nameTagExtractor) openNext() error {
	for e.fileIndex < len(e.files) {
		path := e.files[e.fileIndex]
		e.fileIndex++
		f, err := os.Open(path)
		if err != nil {
			e.log.Errorf("open %s: %s", path, err)
			return fmt.Errorf("%w: %s: %s", toddfault.ErrRawSourceMissing, path, err)
		}
		e.current = f
		e.scanner = bufio.NewScanner(f)
		e.scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		return nil
	}
	return io.EOF
}

// Next returns the next parsed nametag tuple, opening subsequent files
// as each is exhausted, and skipping blank lines.
func (e *nameTagExtractor) Next(ctx context.Context) (extract.Tuple, error) {
	for {
		select {
		case <-ctx.Done():
			return extract.Tuple{}, ctx.Err()
		default:
		}

		if e.scanner == nil {
			if err := e.openNext(); err != nil {
				return extract.Tuple{}, extract.AsExhausted(err)
			}
		}

		if !e.scanner.Scan() {
			if err := e.scanner.Err(); err != nil {
				e.log.Errorf("scan raw source: %s", err)
				return extract.Tuple{}, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMalformed, err)
			}
			e.current.Close()
			e.scanner = nil
			continue
		}

		line := e.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal(line, &raw); err != nil {
			e.log.Errorf("malformed nametag line: %s", err)
			return extract.Tuple{}, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMalformed, err)
		}

		key, err := e.normalize(raw.Address)
		if err != nil {
			e.log.Errorf("normalise address %q: %s", raw.Address, err)
			return extract.Tuple{}, err
		}
		chapterID, err := e.partition(key)
		if err != nil {
			e.log.Errorf("partition address %q: %s", raw.Address, err)
			return extract.Tuple{}, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMalformed, err)
		}

		var name string
		if raw.Name != nil {
			name = *raw.Name
		}

		t := extract.Tuple{
			Volume:  e.volumeFromPosition(e.position),
			Chapter: chapterID,
			Key:     key,
			Value:   e.valueOf(name, raw.Tags),
		}
		e.position++
		return t, nil
	}
}

func (e *nameTagExtractor) Close() error {
	if e.current != nil {
		return e.current.Close()
	}
	return nil
}
