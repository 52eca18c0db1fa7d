// SPDX-License-Identifier: ISC

package unchained_test

import (
	"os"
	"testing"

	"github.com/todd-io/todd/fixtures"
)

func TestMain(m *testing.M) {
	fixtures.SetupTestLogger()
	rc := m.Run()
	fixtures.TeardownTestLogger()
	os.Exit(rc)
}
