package camera

import (
	"context"
	"image"
	"time"
)

// Capture collects n distinct frames from an open source, at most one per
// interval. It waits for the sequence number to advance so the same frame
// is never taken twice.
func Capture(ctx context.Context, src Source, n int, interval time.Duration) ([]image.Image, error) {
	frames := make([]image.Image, 0, n)
	var lastSeq uint64

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for len(frames) < n {
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		case <-ticker.C:
		}

		if err := src.Err(); err != nil {
			return frames, err
		}
		img, seq, ok := src.Latest()
		if !ok || seq == lastSeq {
			continue
		}
		lastSeq = seq
		frames = append(frames, img)
	}

	return frames, nil
}
