// SPDX-License-Identifier: Apache-2.0

package moniker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameFormat(t *testing.T) {
	n := Name(nil)
	parts := strings.Split(n, "-")
	assert.Len(t, parts, 3)
}

func TestNameAvoidsCollisions(t *testing.T) {
	seen := map[string]bool{"amber-badger-5": true}
	n := Name(func(candidate string) bool { return seen[candidate] })
	assert.False(t, seen[n])
}

func TestNameFallsBackWhenExistsAlwaysTrue(t *testing.T) {
	n := Name(func(string) bool { return true })
	assert.NotEmpty(t, n)
}

func TestNameIsDeterministicallyShapedAcrossCalls(t *testing.T) {
	for i := 0; i < 20; i++ {
		n := Name(nil)
		assert.Regexp(t, `^[a-z]+-[a-z]+-\d+$`, n)
	}
}
