// SPDX-License-Identifier: ISC

package toddfault_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/todd-io/todd/toddfault"
)

// TestClassification exercises that each sentinel is recognised by
// exactly one IsErrXxx helper.
func TestClassification(t *testing.T) {
	cases := []struct {
		err      error
		invalid  bool
		notFound bool
		integ    bool
		process  bool
	}{
		{toddfault.ErrDecodeOverflow, true, false, false, false},
		{toddfault.ErrDecodeTruncated, true, false, false, false},
		{toddfault.ErrRawSourceMissing, false, true, false, false},
		{toddfault.ErrRawSourceExhausted, false, true, false, false},
		{toddfault.ErrIntegrityViolation, false, false, true, false},
		{toddfault.ErrCadenceGap, false, false, false, true},
		{toddfault.ErrMisroutedRecord, false, false, false, true},
		{toddfault.ErrManifestRewrite, false, false, false, true},
		{toddfault.ErrTransportError, false, false, false, true},
	}

	for _, c := range cases {
		assert.Equal(t, c.invalid, toddfault.IsErrInvalid(c.err), c.err.Error())
		assert.Equal(t, c.notFound, toddfault.IsErrNotFound(c.err), c.err.Error())
		assert.Equal(t, c.integ, toddfault.IsErrIntegrity(c.err), c.err.Error())
		assert.Equal(t, c.process, toddfault.IsErrProcess(c.err), c.err.Error())
	}
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "record key does not belong to this chapter", toddfault.ErrMisroutedRecord.Error())
}

func TestClassificationUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("reading manifest: %w", toddfault.ErrRawSourceMissing)
	assert.True(t, toddfault.IsErrNotFound(wrapped))
	assert.False(t, toddfault.IsErrInvalid(wrapped))
}
