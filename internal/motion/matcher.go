package motion

import (
	"math"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/models"
)

// MatcherConfig holds the matching knobs. The values are hand tuned.
type MatcherConfig struct {
	WindowSize          int
	NoSignatureFloor    float64 // rolling average below which nothing matches
	NoSignatureGain     float64 // score per point of rolling average
	SimilarityTolerance float64 // ratio deviation still treated as fully similar
	ActivityFraction    float64 // fraction of learned intensity that earns the full activity bonus
	IntensityWeight     float64
	PeakWeight          float64
	ActivityWeight      float64
	MatchThreshold      float64 // score above which PatternMatch can be asserted
	MotionFloor         float64 // motion level above which PatternMatch can be asserted
}

// DefaultMatcherConfig returns the tuned defaults.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		WindowSize:          constants.MotionWindowSize,
		NoSignatureFloor:    constants.NoSignatureFloor,
		NoSignatureGain:     constants.NoSignatureGain,
		SimilarityTolerance: constants.SimilarityTolerance,
		ActivityFraction:    constants.ActivityFraction,
		IntensityWeight:     constants.IntensityWeight,
		PeakWeight:          constants.PeakWeight,
		ActivityWeight:      constants.ActivityWeight,
		MatchThreshold:      constants.PatternMatchThreshold,
		MotionFloor:         constants.PatternMatchMotionFloor,
	}
}

// MatchState is recomputed for every processed frame.
type MatchState struct {
	MotionLevel  float64
	MatchScore   float64
	PatternMatch bool
}

// Score rates recent motion in [0,100]. Without a usable signature any
// sustained motion above the floor counts; with one, the rolling average and
// peak are compared leniently against the calibration and an activity bonus
// carries most of the weight.
func Score(w *Window, sig *models.MotionSignature, cfg MatcherConfig) float64 {
	avg := w.Average()

	if sig == nil || sig.AvgIntensity <= 0 {
		if avg < cfg.NoSignatureFloor {
			return 0
		}
		return clamp(avg*cfg.NoSignatureGain, 0, 100)
	}

	intensity := similarity(avg, sig.AvgIntensity, cfg.SimilarityTolerance)
	peak := similarity(w.Max(), sig.PeakMotion, cfg.SimilarityTolerance)
	activity := clamp(avg/(sig.AvgIntensity*cfg.ActivityFraction), 0, 1)

	score := 100 * (cfg.IntensityWeight*intensity + cfg.PeakWeight*peak + cfg.ActivityWeight*activity)
	return clamp(score, 0, 100)
}

// similarity is 1 while a and b are within tolerance times each other and
// falls off linearly beyond that.
func similarity(a, b, tolerance float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	ratio := math.Min(a, b) / math.Max(a, b)
	return clamp(ratio*tolerance, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Matcher owns the rolling window for one detection session.
// Not safe for concurrent use.
type Matcher struct {
	cfg       MatcherConfig
	window    *Window
	signature *models.MotionSignature
}

// NewMatcher returns a Matcher. sig may be nil.
func NewMatcher(cfg MatcherConfig, sig *models.MotionSignature) *Matcher {
	return &Matcher{
		cfg:       cfg,
		window:    NewWindow(cfg.WindowSize),
		signature: sig,
	}
}

// Update records a motion level and returns the resulting match state.
func (m *Matcher) Update(level float64) MatchState {
	m.window.Push(level)
	score := Score(m.window, m.signature, m.cfg)
	return MatchState{
		MotionLevel:  level,
		MatchScore:   score,
		PatternMatch: score > m.cfg.MatchThreshold && level > m.cfg.MotionFloor,
	}
}

// HasSignature reports whether matching runs against a learned signature.
func (m *Matcher) HasSignature() bool {
	return m.signature != nil && m.signature.AvgIntensity > 0
}

// Reset clears the rolling window.
func (m *Matcher) Reset() {
	m.window.Reset()
}
