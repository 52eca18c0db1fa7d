// SPDX-License-Identifier: ISC

// Package signatures reads "<8-hex-selector>=<text signature>" lines and
// streams them as extract.Tuple values. A single line may list multiple
// colliding texts separated by ';' ("<text>;<text>;<text>").
//
// This package has no dependency on any concrete Spec: the caller
// supplies the partition function, the VolumeID-from-position function,
// and a constructor for the spec's RecordValue, so signatures.Spec can
// inject itself without an import cycle.
package signatures

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitmark-inc/logger"

	"github.com/todd-io/todd/extract"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/toddfault"
)

// PartitionFunc routes a selector RecordKey to a ChapterID.
type PartitionFunc func(ids.RecordKey) (ids.ChapterID, error)

// VolumeFromPosition maps the running addition count to its VolumeID.
type VolumeFromPosition func(position uint64) ids.VolumeID

// ValueOf builds a spec-specific RecordValue from the parsed text list.
type ValueOf func(texts []string) ids.RecordValue

type signatureExtractor struct {
	volumeFromPosition VolumeFromPosition
	partition          PartitionFunc
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
func New(rawRoot string, volumeFromPosition VolumeFromPosition, partition PartitionFunc, valueOf ValueOf) (extract.Extractor, error) {
	log := logger.New("signatures")
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
	log.Infof("opened %s: %d signature files", rawRoot, len(files))
	return &signatureExtractor{
		volumeFromPosition: volumeFromPosition,
		partition:          partition,
		valueOf:            valueOf,
		log:                log,
		files:              files,
	}, nil
}

func (e *signatureExtractor) openNext() error {
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
		return nil
	}
	return io.EOF
}

// Next returns the next "<selector>=<text;text>" line parsed into a Tuple.
func (e *signatureExtractor) Next(ctx context.Context) (extract.Tuple, error) {
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

		line := strings.TrimSpace(e.scanner.Text())
		if line == "" {
			continue
		}

		selectorHex, textPart, ok := strings.Cut(line, "=")
		if !ok {
			e.log.Errorf("malformed line %q: missing '='", line)
			return extract.Tuple{}, fmt.Errorf("%w: line %q missing '='", toddfault.ErrRawSourceMalformed, line)
		}
		selector, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(selectorHex), "0x"))
		if err != nil || len(selector) != 4 {
			e.log.Errorf("malformed selector %q", selectorHex)
			return extract.Tuple{}, fmt.Errorf("%w: %q is not a 4-byte hex selector", toddfault.ErrRawSourceMalformed, selectorHex)
		}

		chapterID, err := e.partition(ids.RecordKey(selector))
		if err != nil {
			e.log.Errorf("partition selector %q: %s", selectorHex, err)
			return extract.Tuple{}, fmt.Errorf("%w: %s", toddfault.ErrRawSourceMalformed, err)
		}

		texts := strings.Split(textPart, ";")

		t := extract.Tuple{
			Volume:  e.volumeFromPosition(e.position),
			Chapter: chapterID,
			Key:     ids.RecordKey(selector),
			Value:   e.valueOf(texts),
		}
		e.position++
		return t, nil
	}
}

func (e *signatureExtractor) Close() error {
	if e.current != nil {
		return e.current.Close()
	}
	return nil
}
