// SPDX-License-Identifier: ISC

package ids_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/todd-io/todd/ids"
)

func TestRecordKeyCompare(t *testing.T) {
	a := ids.RecordKey{0x01, 0x02}
	b := ids.RecordKey{0x01, 0x03}
	c := ids.RecordKey{0x01, 0x02}
	short := ids.RecordKey{0x01}

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(c))
	assert.True(t, a.Equal(c))
	assert.Positive(t, a.Compare(short))
	assert.Negative(t, short.Compare(a))
}
