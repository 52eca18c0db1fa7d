// SPDX-License-Identifier: ISC

// Package cid computes and represents CIDv0 content identifiers: a
// base58-encoded sha-256 multihash of an encoded artefact's bytes,
// interoperable with IPFS and similar content-addressed transports.
package cid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/todd-io/todd/toddfault"
)

// Length - number of bytes in an encoded CIDv0: 2-byte multihash prefix
// (sha2-256, length 32) plus the 32-byte digest.
const Length = 34

const (
	sha256MultihashCode = 0x12
	sha256DigestLength  = 0x20
)

// CID - a CIDv0 content identifier: multihash(sha256(bytes)) as base58.
type CID [Length]byte

// Of computes the CIDv0 of an already-encoded artefact.
func Of(encoded []byte) CID {
	digest := sha256.Sum256(encoded)
	var c CID
	c[0] = sha256MultihashCode
	c[1] = sha256DigestLength
	copy(c[2:], digest[:])
	return c
}

// Verify reports whether encoded hashes to c.
func Verify(encoded []byte, c CID) bool {
	return Of(encoded) == c
}

// String renders the CID as base58, the canonical on-disk and on-the-wire
// form.
func (c CID) String() string {
	return base58.Encode(c[:])
}

// GoString - developer-facing representation, mirrors merkle.Digest's
// %#v form.
func (c CID) GoString() string {
	return "<CIDv0:" + c.String() + ">"
}

// Parse decodes a base58 CIDv0 string, validating its length and multihash
// prefix.
func Parse(s string) (CID, error) {
	var c CID
	decoded, err := base58.Decode(s)
	if err != nil {
		return c, fmt.Errorf("%w: %s", toddfault.ErrInvalidIdentifier, err)
	}
	if len(decoded) != Length {
		return c, toddfault.ErrInvalidIdentifier
	}
	if decoded[0] != sha256MultihashCode || decoded[1] != sha256DigestLength {
		return c, toddfault.ErrInvalidIdentifier
	}
	copy(c[:], decoded)
	return c, nil
}

// MarshalText satisfies encoding.TextMarshaler so a CID can be embedded
// directly in the manifest's JSON representation.
func (c CID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler.
func (c *CID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// HexDigest returns the big-endian hex of just the 32-byte sha-256 digest,
// with the multihash prefix stripped, useful for log lines and error
// messages where base58 is harder to eyeball than hex.
func (c CID) HexDigest() string {
	return hex.EncodeToString(c[2:])
}
