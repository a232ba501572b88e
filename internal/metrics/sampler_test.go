package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampler_RateZeroNeverChooses(t *testing.T) {
	s := NewSampler(0, 1)
	for i := 0; i < sampleMaskSize*2; i++ {
		assert.False(t, s.IsChosen(0))
	}
}

func TestSampler_RateFullAlwaysChooses(t *testing.T) {
	s := NewSampler(256, 1)
	for i := 0; i < sampleMaskSize*2; i++ {
		assert.True(t, s.IsChosen(0))
	}
}

func TestSampler_PartialRateMatchesProportion(t *testing.T) {
	s := NewSampler(64, 1) // 64/256 == 1/4
	chosen := 0
	for i := 0; i < sampleMaskSize; i++ {
		if s.IsChosen(0) {
			chosen++
		}
	}
	assert.Equal(t, 64, chosen, "exactly sampleRate positions of the mask are on per full cycle")
}

func TestSampler_KeysAdvanceIndependently(t *testing.T) {
	s := NewSampler(64, 2)
	var key0, key1 int
	for i := 0; i < sampleMaskSize; i++ {
		if s.IsChosen(0) {
			key0++
		}
		if s.IsChosen(1) {
			key1++
		}
	}
	assert.Equal(t, 64, key0)
	assert.Equal(t, 64, key1)
}
