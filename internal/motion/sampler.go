package motion

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/julianstephens/repcam/internal/constants"
)

// Sampler scales frames to the fixed working resolution. Calibration and the
// live loop share one kernel so learned levels compare with live ones.
// The returned pixel buffer is reused and is only valid until the next call.
type Sampler struct {
	dst    *image.RGBA
	scaler draw.Scaler
}

// NewSampler returns a Sampler using bilinear approximation, which is cheap
// enough for every live frame.
func NewSampler() *Sampler {
	return &Sampler{
		dst:    image.NewRGBA(image.Rect(0, 0, constants.WorkingWidth, constants.WorkingHeight)),
		scaler: draw.ApproxBiLinear,
	}
}

// Sample scales img into the working buffer and returns its RGBA pixels.
// It returns nil for an empty image.
func (s *Sampler) Sample(img image.Image) []byte {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	s.scaler.Scale(s.dst, s.dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return s.dst.Pix
}
