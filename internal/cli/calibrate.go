package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"time"

	"github.com/julianstephens/repcam/internal/camera"
	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/motion"
	"github.com/julianstephens/repcam/internal/store"
)

type CalibrateCmd struct {
	Frames    int           `help:"Number of frames to capture." default:"${calibration_frames}"`
	Interval  time.Duration `help:"Time between captured frames." default:"100ms"`
	Countdown int           `help:"Seconds to wait before capturing." default:"3"`
	Replay    string        `help:"Learn from a directory of stills instead of the camera." type:"existingdir"`
}

func (c *CalibrateCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	habit := st.Snapshot().Habit
	if habit == nil {
		return store.ErrNoHabit
	}
	if c.Frames < constants.MinCalibrationFrames {
		return fmt.Errorf("--frames must be at least %d", constants.MinCalibrationFrames)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var frames []image.Image
	if c.Replay != "" {
		frames, err = camera.LoadFrames(c.Replay)
		if err != nil {
			return err
		}
		if len(frames) > c.Frames {
			frames = frames[:c.Frames]
		}
	} else {
		frames, err = c.capture(runCtx, ctx)
		if err != nil {
			return err
		}
	}

	encoded := make([]string, 0, len(frames))
	for i, f := range frames {
		s, err := motion.EncodeFrame(f)
		if err != nil {
			logger.Warn("Skipping frame that could not be encoded", "index", i, "error", err)
			continue
		}
		encoded = append(encoded, s)
	}

	var sig *models.MotionSignature
	learned, err := motion.Learn(frames)
	switch {
	case errors.Is(err, motion.ErrInsufficientSamples):
		fmt.Printf("⚠ Only %d usable frame(s); any sustained motion will count until you recalibrate.\n", len(frames))
	case err != nil:
		return fmt.Errorf("failed to learn motion signature: %w", err)
	default:
		sig = &learned
	}

	if habit.HasSignature() {
		ctx.PerformAutomaticBackup()
	}
	if err := st.Recalibrate(encoded, sig); err != nil {
		return err
	}

	if sig == nil {
		fmt.Printf("Saved %d reference frame(s) for %s.\n", len(encoded), habit.Name)
		return nil
	}
	fmt.Printf("✓ Calibrated %s from %d frames\n", habit.Name, len(frames))
	fmt.Printf("  Average motion: %.1f\n", sig.AvgIntensity)
	fmt.Printf("  Peak motion:    %.1f\n", sig.PeakMotion)
	return nil
}

func (c *CalibrateCmd) capture(runCtx context.Context, ctx *Context) ([]image.Image, error) {
	settings, err := ctx.Settings()
	if err != nil {
		return nil, err
	}
	src, err := camera.New(camera.OptionsFromSettings(settings))
	if err != nil {
		return nil, err
	}
	defer src.Close()

	fmt.Printf("Connecting to %s...\n", src.Device())
	if err := src.Open(runCtx); err != nil {
		return nil, fmt.Errorf("%s: %w", camera.StateFor(err), err)
	}

	for i := c.Countdown; i > 0; i-- {
		fmt.Printf("Starting in %d...\n", i)
		select {
		case <-runCtx.Done():
			return nil, runCtx.Err()
		case <-time.After(time.Second):
		}
	}
	fmt.Println("Recording. Perform the movement once.")

	frames, err := camera.Capture(runCtx, src, c.Frames, c.Interval)
	if err != nil {
		if len(frames) < constants.MinCalibrationFrames {
			return nil, fmt.Errorf("capture stopped after %d frame(s): %w", len(frames), err)
		}
		logger.Warn("Capture ended early", "frames", len(frames), "error", err)
	}
	return frames, nil
}
