package fcv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFCV(t *testing.T) {
	t.Run("not negotiated", func(t *testing.T) {
		f := New(0)
		assert.False(t, f.IsFullyUpgraded(Latest))
	})

	t.Run("fully upgraded", func(t *testing.T) {
		f := New(Latest)
		assert.True(t, f.IsFullyUpgraded(Latest))
	})

	t.Run("downgraded at runtime", func(t *testing.T) {
		f := New(Latest)
		f.Set(Version1)

		assert.Equal(t, Version1, f.Version())
		assert.False(t, f.IsFullyUpgraded(Latest))
		assert.True(t, f.IsFullyUpgraded(Version1))
	})

	t.Run("gate tracks updates", func(t *testing.T) {
		f := New(Version1)
		gate := f.Gate(Latest)

		assert.False(t, gate.IsFullyUpgraded())

		f.Set(Latest)
		assert.True(t, gate.IsFullyUpgraded())
	})
}
