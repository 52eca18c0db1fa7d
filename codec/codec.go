// SPDX-License-Identifier: ISC

// Package codec provides deterministic, length-delimited binary
// serialisation of Chapters, wrapped in snappy compression per the
// on-disk `.ssz_snappy` contract.
//
// The envelope is a fixed, length-delimited encoding in the spirit of
// SSZ: version byte, chapter id, length-prefixed volume id string,
// record count, then each record as len(key)||key||len(value)||value.
// RecordValue bytes themselves are produced by a spec-supplied
// ValueCodec, since only the Spec knows a value's concrete shape.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/todd-io/todd/chapter"
	"github.com/todd-io/todd/ids"
	"github.com/todd-io/todd/toddfault"
)

const envelopeVersion = 1

// ValueCodec turns a spec's RecordValue to and from bytes. Each concrete
// Spec supplies one; the codec package never inspects a value directly.
type ValueCodec interface {
	EncodeValue(ids.RecordValue) ([]byte, error)
	DecodeValue([]byte) (ids.RecordValue, error)
}

// Bounds carries the spec capacity constants the decoder enforces.
type Bounds struct {
	MaxRecords    int
	MaxKeyBytes   int
	MaxValueBytes int
}

// EncodeChapter serialises a frozen Chapter to its `.ssz_snappy` bytes.
func EncodeChapter(c *chapter.Frozen, vc ValueCodec, b Bounds) ([]byte, error) {
	if b.MaxRecords > 0 && len(c.Records) > b.MaxRecords {
		return nil, fmt.Errorf("%w: %d records exceeds bound %d", toddfault.ErrEncodeTooLarge, len(c.Records), b.MaxRecords)
	}

	var buf bytes.Buffer
	buf.WriteByte(envelopeVersion)
	buf.WriteByte(byte(c.ChapterID))

	if err := writeLenPrefixedString(&buf, c.VolumeIDString); err != nil {
		return nil, err
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(c.Records)))
	buf.Write(countBuf[:])

	for _, rec := range c.Records {
		if b.MaxKeyBytes > 0 && len(rec.Key) > b.MaxKeyBytes {
			return nil, fmt.Errorf("%w: key length %d exceeds bound %d", toddfault.ErrEncodeTooLarge, len(rec.Key), b.MaxKeyBytes)
		}
		valueBytes, err := vc.EncodeValue(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		if b.MaxValueBytes > 0 && len(valueBytes) > b.MaxValueBytes {
			return nil, fmt.Errorf("%w: value length %d exceeds bound %d", toddfault.ErrEncodeTooLarge, len(valueBytes), b.MaxValueBytes)
		}
		if err := writeLenPrefixedBytes(&buf, rec.Key); err != nil {
			return nil, err
		}
		if err := writeLenPrefixedBytes(&buf, valueBytes); err != nil {
			return nil, err
		}
	}

	return snappy.Encode(nil, buf.Bytes()), nil
}

// DecodeChapter reverses EncodeChapter, enforcing b's bounds and returning
// toddfault decode sentinels on any malformed input.
func DecodeChapter(encoded []byte, vc ValueCodec, b Bounds) (*chapter.Frozen, error) {
	raw, err := snappy.Decode(nil, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy: %s", toddfault.ErrDecodeTruncated, err)
	}
	r := bytes.NewReader(raw)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: version byte: %s", toddfault.ErrDecodeTruncated, err)
	}
	if version != envelopeVersion {
		return nil, fmt.Errorf("%w: unknown envelope version %d", toddfault.ErrDecodeUnexpectedLength, version)
	}

	chapterIDByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: chapter id byte: %s", toddfault.ErrDecodeTruncated, err)
	}

	volumeIDString, err := readLenPrefixedString(r)
	if err != nil {
		return nil, err
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: record count: %s", toddfault.ErrDecodeTruncated, err)
	}
	count := binary.LittleEndian.Uint32(countBuf[:])
	if b.MaxRecords > 0 && int(count) > b.MaxRecords {
		return nil, fmt.Errorf("%w: record count %d exceeds bound %d", toddfault.ErrDecodeOverflow, count, b.MaxRecords)
	}

	records := make([]chapter.Record, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := readLenPrefixedBytes(r, b.MaxKeyBytes)
		if err != nil {
			return nil, err
		}
		valueBytes, err := readLenPrefixedBytes(r, b.MaxValueBytes)
		if err != nil {
			return nil, err
		}
		value, err := vc.DecodeValue(valueBytes)
		if err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}
		records = append(records, chapter.Record{Key: ids.RecordKey(key), Value: value})
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", toddfault.ErrDecodeUnexpectedLength, r.Len())
	}

	return &chapter.Frozen{
		ChapterID:       ids.ChapterID(chapterIDByte),
		ChapterIDString: "", // filled in by caller, which knows the Spec's string form
		VolumeIDString:  volumeIDString,
		Records:         records,
	}, nil
}

func writeLenPrefixedBytes(buf *bytes.Buffer, b []byte) error {
	if len(b) > 0xFFFF {
		return fmt.Errorf("%w: length %d exceeds uint16 envelope field", toddfault.ErrEncodeTooLarge, len(b))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
	return nil
}

func writeLenPrefixedString(buf *bytes.Buffer, s string) error {
	return writeLenPrefixedBytes(buf, []byte(s))
}

func readLenPrefixedBytes(r *bytes.Reader, maxLen int) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: length prefix: %s", toddfault.ErrDecodeTruncated, err)
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	if maxLen > 0 && int(n) > maxLen {
		return nil, fmt.Errorf("%w: field length %d exceeds bound %d", toddfault.ErrDecodeOverflow, n, maxLen)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: field body: %s", toddfault.ErrDecodeTruncated, err)
	}
	return b, nil
}

func readLenPrefixedString(r *bytes.Reader) (string, error) {
	b, err := readLenPrefixedBytes(r, 0xFFFF)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
