package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetSet_NextFree(t *testing.T) {
	t.Parallel()
	s := newOffsetSet()
	for _, off := range []int64{0, 10, 20, 30, 50} {
		assert.True(t, s.insert(off))
	}
	assert.False(t, s.insert(20), "duplicate insert")
	assert.Equal(t, 5, s.len())

	tests := []struct {
		from int64
		want int64
	}{
		{0, 40},
		{10, 40},
		{40, 40},
		{50, 60},
		{60, 60},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, s.nextFree(tc.from, 10), "nextFree(%d)", tc.from)
	}
	assert.True(t, s.has(30))
	assert.False(t, s.has(40))
}
