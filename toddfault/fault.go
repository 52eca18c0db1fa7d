// SPDX-License-Identifier: ISC

// Package toddfault provides a single instance of each engine error to
// allow easy comparison without resorting to partial string matches.
package toddfault

import "errors"

// error base
type GenericError string

// classes of error, matched by the IsErrXxx helpers below
type InvalidError GenericError
type NotFoundError GenericError
type IntegrityError GenericError
type ProcessError GenericError

// sentinel errors, kept in alphabetic order within each class
var (
	ErrCadenceGap             = ProcessError("non-contiguous volume ids observed")
	ErrDecodeOverflow         = InvalidError("decoded length exceeds spec bound")
	ErrDecodeTruncated        = InvalidError("encoded bytes end before envelope is satisfied")
	ErrDecodeUnexpectedLength = InvalidError("decoded field length does not match envelope")
	ErrEncodeTooLarge         = InvalidError("value exceeds spec capacity bound")
	ErrIntegrityViolation     = IntegrityError("fetched bytes do not hash to the requested cid")
	ErrInvalidIdentifier      = InvalidError("identifier string does not round-trip")
	ErrManifestRewrite        = ProcessError("attempted to reorder or replace a historical manifest entry")
	ErrMisroutedRecord        = ProcessError("record key does not belong to this chapter")
	ErrRawSourceExhausted     = NotFoundError("raw source has no further tuples")
	ErrRawSourceMalformed     = InvalidError("raw source entry could not be parsed")
	ErrRawSourceMissing       = NotFoundError("raw source could not be located")
	ErrTransportError         = ProcessError("transport failed to fetch requested cid")
)

// Error - the error interface base method
func (e GenericError) Error() string { return string(e) }

// Error - the error interface methods for each class
func (e InvalidError) Error() string   { return string(e) }
func (e NotFoundError) Error() string  { return string(e) }
func (e IntegrityError) Error() string { return string(e) }
func (e ProcessError) Error() string   { return string(e) }

// IsErrInvalid - determine the class of an error, unwrapping as needed
func IsErrInvalid(e error) bool { var t InvalidError; return errors.As(e, &t) }

// IsErrNotFound - determine the class of an error, unwrapping as needed
func IsErrNotFound(e error) bool { var t NotFoundError; return errors.As(e, &t) }

// IsErrIntegrity - determine the class of an error, unwrapping as needed
func IsErrIntegrity(e error) bool { var t IntegrityError; return errors.As(e, &t) }

// IsErrProcess - determine the class of an error, unwrapping as needed
func IsErrProcess(e error) bool { var t ProcessError; return errors.As(e, &t) }
