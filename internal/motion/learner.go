package motion

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
)

// ErrInsufficientSamples is returned when too few calibration frames are
// available to learn a signature.
var ErrInsufficientSamples = errors.New("insufficient calibration frames")

// Learn derives a motion signature from calibration frames in capture order.
// It fails with ErrInsufficientSamples for fewer than MinCalibrationFrames.
func Learn(frames []image.Image) (models.MotionSignature, error) {
	if len(frames) < constants.MinCalibrationFrames {
		return models.MotionSignature{}, fmt.Errorf("%w: got %d, need %d", ErrInsufficientSamples, len(frames), constants.MinCalibrationFrames)
	}

	sampler := NewSampler()
	scorer := NewScorer()
	sequence := make([]float64, 0, len(frames)-1)

	for i, frame := range frames {
		buf := sampler.Sample(frame)
		if buf == nil {
			return models.MotionSignature{}, fmt.Errorf("frame %d is empty", i)
		}
		level := scorer.Next(buf)
		if i > 0 {
			sequence = append(sequence, level)
		}
	}

	return summarize(sequence), nil
}

// LearnEncoded decodes base64 encoded stills and learns from the ones that
// decode. It returns how many frames were skipped.
func LearnEncoded(encoded []string) (models.MotionSignature, int, error) {
	frames := make([]image.Image, 0, len(encoded))
	skipped := 0
	for i, s := range encoded {
		img, err := DecodeFrame(s)
		if err != nil {
			logger.Warn("Skipping calibration frame", "index", i, "error", err)
			skipped++
			continue
		}
		frames = append(frames, img)
	}

	sig, err := Learn(frames)
	return sig, skipped, err
}

// DecodeFrame decodes a base64 encoded JPEG or PNG still. A data URL prefix
// is accepted.
func DecodeFrame(encoded string) (image.Image, error) {
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.IndexByte(encoded, ','); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func summarize(sequence []float64) models.MotionSignature {
	sig := models.MotionSignature{
		MotionSequence: sequence,
		Duration:       len(sequence),
	}
	if len(sequence) == 0 {
		return sig
	}
	var sum float64
	for _, v := range sequence {
		sum += v
		if v > sig.PeakMotion {
			sig.PeakMotion = v
		}
	}
	sig.AvgIntensity = sum / float64(len(sequence))
	return sig
}

// EncodeFrame encodes a still as base64 JPEG for storage in the habit record.
func EncodeFrame(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.CalibrationJPEGQuality}); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
