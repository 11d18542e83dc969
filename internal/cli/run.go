package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/repcam/internal/camera"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/notifier"
	"github.com/julianstephens/repcam/internal/session"
	"github.com/julianstephens/repcam/internal/tui"
)

type RunCmd struct {
	Replay   string        `help:"Replay a directory of stills instead of the live camera." type:"existingdir"`
	Loop     bool          `help:"Restart the replay when it reaches the end."`
	FPS      int           `help:"Replay frame rate." default:"15"`
	Headless bool          `help:"Print completions instead of showing the dashboard."`
	For      time.Duration `help:"Stop after this long. Zero runs until interrupted."`
}

func (c *RunCmd) source(ctx *Context) (camera.Source, error) {
	settings, err := ctx.Settings()
	if err != nil {
		return nil, err
	}
	opts := camera.OptionsFromSettings(settings)
	if c.Replay == "" {
		return camera.New(opts)
	}
	opts.FrameRate = c.FPS
	opts.Loop = c.Loop
	return camera.NewReplaySource(c.Replay, opts), nil
}

func (c *RunCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	settings, err := ctx.Settings()
	if err != nil {
		return err
	}
	src, err := c.source(ctx)
	if err != nil {
		return err
	}

	disp := notifier.FromSettings(settings, ctx.Config)
	defer func() {
		if err := disp.Close(); err != nil {
			logger.Warn("Failed to close notification sinks", "error", err)
		}
	}()

	sess, err := session.New(src, st, disp, session.DefaultOptions())
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if c.For > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, c.For)
		defer cancel()
	}

	mgr := session.NewManager()
	defer mgr.StopAll()

	if err := mgr.Start(runCtx, sess); err != nil {
		// The session keeps running for manual completions
		fmt.Fprintf(os.Stderr, "⚠ %v\n", err)
	}

	if c.Headless {
		return watch(runCtx, sess, os.Stdout)
	}

	p := tea.NewProgram(tui.NewModel(sess), tea.WithAltScreen(), tea.WithContext(runCtx))
	if _, err := p.Run(); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

// watchedSession is what the headless watcher reads.
type watchedSession interface {
	Snapshot() session.Snapshot
	Updates() <-chan session.Snapshot
}

// watch prints camera changes and the latest completion of each update until
// ctx ends. Updates are latest-only, so reps committed between two updates
// show up through the count of the next printed completion.
func watch(ctx context.Context, sess watchedSession, w io.Writer) error {
	snap := sess.Snapshot()
	fmt.Fprintf(w, "Watching %s for %s (%s). Press Ctrl+C to stop.\n", snap.Device, snap.HabitName, snap.Camera)

	lastCamera := snap.Camera
	lastEvent := ""
	for {
		select {
		case <-ctx.Done():
			final := sess.Snapshot()
			fmt.Fprintf(w, "Stopped. Today: %d / %d, streak %d\n", final.Count, final.Goal, final.Streak)
			return nil
		case snap := <-sess.Updates():
			if snap.Camera != lastCamera {
				lastCamera = snap.Camera
				fmt.Fprintf(w, "[%s] %s\n", time.Now().Format(time.TimeOnly), snap.Camera)
			}
			if snap.LastEvent != nil && snap.LastEvent.ID != lastEvent {
				lastEvent = snap.LastEvent.ID
				fmt.Fprintf(w, "[%s] %s\n", snap.LastEvent.At.Format(time.TimeOnly), notifier.Message(*snap.LastEvent))
			}
		}
	}
}
