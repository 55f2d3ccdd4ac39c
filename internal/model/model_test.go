package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaturatingAdd(t *testing.T) {
	assert.Equal(t, int64(3), SaturatingAdd(1, 2))
	assert.Equal(t, int64(math.MaxInt64), SaturatingAdd(math.MaxInt64, 1))
	assert.Equal(t, int64(math.MaxInt64), SaturatingAdd(math.MaxInt64-5, 100))
	assert.Equal(t, int64(0), SaturatingAdd(0, 0))
}

func TestSaturatingAddNegativeOperands(t *testing.T) {
	// A negative addend must subtract, not trip the overflow clamp.
	assert.Equal(t, int64(9), SaturatingAdd(10, -1))
	assert.Equal(t, int64(-3), SaturatingAdd(-1, -2))
	assert.Equal(t, int64(99), SaturatingAdd(-1, 100))
	assert.Equal(t, int64(math.MinInt64), SaturatingAdd(math.MinInt64, -1))
	assert.Equal(t, int64(math.MinInt64+1), SaturatingAdd(math.MinInt64, 1))
	assert.Equal(t, int64(-1), SaturatingAdd(math.MaxInt64, math.MinInt64))
}

func TestTokenBreakdownAdd(t *testing.T) {
	a := TokenBreakdown{Input: 100, Output: 50, CacheRead: 25, CacheWrite: 10, Reasoning: 5}
	b := TokenBreakdown{Input: 1, Output: 2, CacheRead: 3, CacheWrite: 4, Reasoning: 5}

	a.Add(b)

	assert.Equal(t, TokenBreakdown{Input: 101, Output: 52, CacheRead: 28, CacheWrite: 14, Reasoning: 10}, a)
}

func TestTokenBreakdownAddSaturates(t *testing.T) {
	a := TokenBreakdown{Input: math.MaxInt64}
	a.Add(TokenBreakdown{Input: 1})

	assert.Equal(t, int64(math.MaxInt64), a.Input)
}

func TestTokenBreakdownTotal(t *testing.T) {
	b := TokenBreakdown{Input: 100, Output: 50, CacheRead: 25, CacheWrite: 10, Reasoning: 15}
	assert.Equal(t, int64(200), b.Total())

	assert.Equal(t, int64(0), TokenBreakdown{}.Total())

	huge := TokenBreakdown{Input: math.MaxInt64, Output: math.MaxInt64}
	assert.Equal(t, int64(math.MaxInt64), huge.Total())
}
