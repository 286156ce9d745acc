package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrune(t *testing.T) {
	t.Run("keeps entries after the window start", func(t *testing.T) {
		got := prune([]int64{10, 20, 30, 40}, 20)

		assert.Equal(t, []int64{30, 40}, got)
	})

	t.Run("returns the same slice when nothing expired", func(t *testing.T) {
		in := []int64{30, 40}

		got := prune(in, 20)

		assert.Equal(t, &in[0], &got[0])
	})

	t.Run("small lists reuse their array", func(t *testing.T) {
		in := make([]int64, 0, minShrinkCap)
		for i := int64(0); i < minShrinkCap; i++ {
			in = append(in, i)
		}

		got := prune(in, minShrinkCap-2)

		assert.Equal(t, []int64{minShrinkCap - 1}, got)
		assert.Equal(t, minShrinkCap, cap(got))
	})

	t.Run("burst capacity is released once the burst expires", func(t *testing.T) {
		burst := make([]int64, 0, 10_000)
		for i := int64(0); i < 10_000; i++ {
			burst = append(burst, i)
		}

		got := prune(burst, 9_994)

		assert.Equal(t, []int64{9_995, 9_996, 9_997, 9_998, 9_999}, got)
		assert.LessOrEqual(t, cap(got), 10)
	})

	t.Run("everything expired", func(t *testing.T) {
		burst := make([]int64, 100)

		got := prune(burst, 1)

		assert.Empty(t, got)
		assert.LessOrEqual(t, cap(got), 1)
	})
}
