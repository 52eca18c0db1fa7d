// SPDX-License-Identifier: ISC

package cid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/todd-io/todd/cid"
)

func TestOfIsDeterministic(t *testing.T) {
	data := []byte("chapter bytes")
	a := cid.Of(data)
	b := cid.Of(data)
	assert.Equal(t, a, b)
}

func TestOfDiffersOnDifferentInput(t *testing.T) {
	assert.NotEqual(t, cid.Of([]byte("a")), cid.Of([]byte("b")))
}

func TestStringRoundTrip(t *testing.T) {
	original := cid.Of([]byte("round trip me"))
	s := original.String()

	parsed, err := cid.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestVerify(t *testing.T) {
	data := []byte("verify me")
	c := cid.Of(data)
	assert.True(t, cid.Verify(data, c))
	assert.False(t, cid.Verify([]byte("different bytes"), c))
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := cid.Parse("1234")
	assert.Error(t, err)
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := cid.Of([]byte("json me"))
	text, err := original.MarshalText()
	require.NoError(t, err)

	var roundTripped cid.CID
	require.NoError(t, roundTripped.UnmarshalText(text))
	assert.Equal(t, original, roundTripped)
}
