package constants

import "time"

// Working resolution every frame is scaled to before scoring.
const (
	WorkingWidth  = 160
	WorkingHeight = 120
)

// Scorer tuning. A pixel counts as changed when any RGB channel moves by
// more than PixelDiffThreshold; only every PixelStride-th pixel is sampled.
const (
	PixelDiffThreshold = 30
	PixelStride        = 4
)

// Calibration
const (
	MinCalibrationFrames     = 5
	DefaultCalibrationFrames = 30
	CalibrationInterval      = 100 * time.Millisecond
	CalibrationJPEGQuality   = 70
)

// Matcher tuning. These were tuned by hand against real recordings and are
// product knobs rather than derived values.
const (
	MotionWindowSize        = 30
	NoSignatureFloor        = 3.0
	NoSignatureGain         = 5.0
	SimilarityTolerance     = 3.5
	ActivityFraction        = 0.15
	IntensityWeight         = 0.25
	PeakWeight              = 0.25
	ActivityWeight          = 0.5
	PatternMatchThreshold   = 50.0
	PatternMatchMotionFloor = 3.0
)

// Rep state machine tuning
const (
	InstantTriggerScore   = 99.0
	HoldZoneScore         = 99.0
	SustainedStreakFrames = 10
	SustainedTriggerScore = 40.0
	NearMatchScore        = 35.0
	StreakGrowth          = 1
	StreakDecay           = 2
	CompletionAckTicks    = 2
)

// Session cadence
const (
	FrameInterval    = time.Second / 60
	HoldTickInterval = time.Second
	RolloverInterval = time.Minute
	TickSlack        = 50 * time.Millisecond
)
