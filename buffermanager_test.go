package hephaestus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignRange(t *testing.T) {
	for name, tc := range map[string]struct {
		offset, size, atom, limit uint64
		wantOffset, wantSize      uint64
	}{
		"aligned":         {0, 256, 64, 1024, 0, 256},
		"unaligned start": {70, 10, 64, 1024, 64, 64},
		"spans atoms":     {60, 10, 64, 1024, 0, 128},
		"capped at end":   {1000, 20, 64, 1020, 960, 60},
		"coherent atom":   {3, 5, 1, 1024, 3, 5},
		"zero atom":       {3, 5, 0, 1024, 3, 5},
	} {
		o, s := alignRange(tc.offset, tc.size, tc.atom, tc.limit)
		assert.Equal(t, tc.wantOffset, o, name)
		assert.Equal(t, tc.wantSize, s, name)
	}
}

func TestNumIndices(t *testing.T) {
	assert.Equal(t, uint32(6), numIndices(12, false))
	assert.Equal(t, uint32(3), numIndices(12, true))
	assert.Equal(t, uint32(0), numIndices(1, false))
}

func TestCheckRange(t *testing.T) {
	for name, tc := range map[string]struct {
		offset, size, limit uint64
		want                uint64
	}{
		"whole buffer":   {0, 0, 256, 256},
		"rest of buffer": {100, 0, 256, 156},
		"explicit":       {16, 32, 256, 32},
		"exactly to end": {200, 56, 256, 56},
		"empty tail":     {256, 0, 256, 0},
	} {
		got, err := checkRange(tc.offset, tc.size, tc.limit)
		require.NoError(t, err, name)
		assert.Equal(t, tc.want, got, name)
	}

	for name, tc := range map[string]struct {
		offset, size, limit uint64
	}{
		"offset past end":       {300, 0, 256},
		"offset past end sized": {300, 4, 256},
		"overflows end":         {200, 57, 256},
		"wrapping size":         {16, ^uint64(0) - 8, 256},
		"wrapping offset":       {^uint64(0), 2, 256},
	} {
		_, err := checkRange(tc.offset, tc.size, tc.limit)
		assert.Error(t, err, name)
	}
}
