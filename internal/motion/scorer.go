// Package motion turns camera frames into motion levels and scores them
// against a learned motion signature.
package motion

import "github.com/julianstephens/repcam/internal/constants"

// Compare returns the percentage [0,100] of sampled pixels whose color moved
// by more than threshold between prev and curr. Both buffers hold RGBA
// pixels; every stride-th pixel is sampled. Buffers of different length
// cannot be compared and score 0.
func Compare(prev, curr []byte, threshold, stride int) float64 {
	if len(prev) == 0 || len(prev) != len(curr) {
		return 0
	}
	if stride < 1 {
		stride = 1
	}
	step := stride * 4

	sampled, changed := 0, 0
	for i := 0; i+2 < len(curr); i += step {
		sampled++
		if absDiff(prev[i], curr[i]) > threshold ||
			absDiff(prev[i+1], curr[i+1]) > threshold ||
			absDiff(prev[i+2], curr[i+2]) > threshold {
			changed++
		}
	}
	if sampled == 0 {
		return 0
	}
	return 100 * float64(changed) / float64(sampled)
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Scorer compares each buffer against the one it saw before.
// Not safe for concurrent use.
type Scorer struct {
	threshold int
	stride    int
	prev      []byte
	hasPrev   bool
}

// NewScorer returns a Scorer using the default threshold and stride.
func NewScorer() *Scorer {
	return &Scorer{
		threshold: constants.PixelDiffThreshold,
		stride:    constants.PixelStride,
	}
}

// Next scores curr against the previously seen buffer and keeps a copy of
// curr for the next call. The first buffer, and any buffer whose size
// differs from the previous one, scores 0.
func (s *Scorer) Next(curr []byte) float64 {
	if !s.hasPrev || len(s.prev) != len(curr) {
		s.prev = append(s.prev[:0], curr...)
		s.hasPrev = true
		return 0
	}
	level := Compare(s.prev, curr, s.threshold, s.stride)
	copy(s.prev, curr)
	return level
}

// Reset forgets the previous buffer.
func (s *Scorer) Reset() {
	s.prev = s.prev[:0]
	s.hasPrev = false
}
