// Package metrics implements the per-thread sampled event recording
// described in the design's §6: transaction event timestamps, deadlock
// resolver run records, and per-deadlock edge records, each gated by a
// Fisher-Yates-shuffled sample mask so that sampling overhead stays
// bounded and unbiased at high event rates. A thin layer of aggregate
// Prometheus gauges/histograms sits alongside the raw sample lists for
// scraping.
package metrics

import "math/rand"

const sampleMaskSize = 1 << 8

// Sampler decides, per distinct event key, whether to keep a given
// occurrence. It reproduces the original's array-shuffle approach rather
// than a naive "roll a die every time" check: sampleRate out of 256
// positions in a shuffled mask are true, and each key advances through the
// mask independently, so the decision sequence for any one key is
// unbiased even though the mask itself is fixed per Sampler.
type Sampler struct {
	mask  [sampleMaskSize]bool
	count []uint8
}

// NewSampler builds a sampler admitting roughly sampleRate/256 of samples,
// across numKeys independently-advancing counters.
func NewSampler(sampleRate int, numKeys int) *Sampler {
	s := &Sampler{count: make([]uint8, numKeys)}
	on := sampleRate * sampleMaskSize / 256
	for i := 0; i < on; i++ {
		s.mask[i] = true
	}
	rand.Shuffle(sampleMaskSize, func(i, j int) {
		s.mask[i], s.mask[j] = s.mask[j], s.mask[i]
	})
	return s
}

// IsChosen reports whether the next occurrence of key should be sampled,
// and advances key's counter.
func (s *Sampler) IsChosen(key int) bool {
	chosen := s.mask[s.count[key]]
	s.count[key]++
	if int(s.count[key]) >= sampleMaskSize {
		s.count[key] = 0
	}
	return chosen
}
