package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/repcam/internal/logger"
)

const defaultReplayFrameRate = 15

// ReplaySource plays a directory of JPEG or PNG stills in name order. It
// stands in for a camera when recording calibration sets or reproducing a
// session offline.
type ReplaySource struct {
	dir  string
	opts Options

	mu     sync.Mutex
	frames []image.Image
	index  int
	frame  image.Image
	seq    uint64
	state  State
	err    error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReplaySource(dir string, opts Options) *ReplaySource {
	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultReplayFrameRate
	}
	return &ReplaySource{
		dir:   dir,
		opts:  opts,
		state: StatePending,
	}
}

func (s *ReplaySource) Device() string {
	abs, err := filepath.Abs(s.dir)
	if err != nil {
		return s.dir
	}
	return "file://" + abs
}

// LoadFrames decodes every still in dir, sorted by file name. Files that
// fail to decode are skipped.
func LoadFrames(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("Skipping unreadable still", "file", name, "error", err)
			continue
		}
		frames = append(frames, img)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no decodable stills in %s", ErrDeviceUnavailable, dir)
	}
	return frames, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func (s *ReplaySource) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frames, err := LoadFrames(s.dir)
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.state = StateFor(err)
		s.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("camera already open")
	}
	s.frames = frames
	s.index = 0
	s.err = nil
	s.cancel = cancel
	s.done = done
	s.advanceLocked()
	s.mu.Unlock()

	go s.run(runCtx, done)
	return nil
}

// advanceLocked publishes the next frame. It reports false once the
// sequence is exhausted and looping is off.
func (s *ReplaySource) advanceLocked() bool {
	if s.index >= len(s.frames) {
		if !s.opts.Loop {
			return false
		}
		s.index = 0
	}
	s.frame = s.frames[s.index]
	s.index++
	s.seq++
	s.state = StateActive
	return true
}

func (s *ReplaySource) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			ok := s.advanceLocked()
			if !ok {
				s.err = fmt.Errorf("%w: end of replay", ErrDisconnected)
				s.state = StateDisconnected
			}
			s.mu.Unlock()
			if !ok {
				return
			}
		}
	}
}

func (s *ReplaySource) Latest() (image.Image, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.seq, s.frame != nil
}

func (s *ReplaySource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ReplaySource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ReplaySource) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	if s.state == StateActive || s.state == StatePending {
		s.state = StateStopped
	}
	s.frame = nil
	s.frames = nil
	s.mu.Unlock()
	return nil
}
