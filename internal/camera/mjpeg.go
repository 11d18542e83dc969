package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/logger"
)

// MJPEGSource reads a multipart/x-mixed-replace JPEG stream over HTTP.
type MJPEGSource struct {
	opts   Options
	client *http.Client

	mu    sync.Mutex
	frame image.Image
	seq   uint64
	state State
	err   error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMJPEGSource(opts Options) *MJPEGSource {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = constants.DefaultAcquireTimeout
	}
	return &MJPEGSource{
		opts:   opts,
		client: &http.Client{},
		state:  StatePending,
	}
}

func (s *MJPEGSource) Device() string {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return s.opts.URL
	}
	return u.Scheme + "://" + u.Host + u.Path
}

// requestURL adds the preferred capture parameters to the stream URL.
func (s *MJPEGSource) requestURL() (string, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL: %v", ErrDeviceUnavailable, err)
	}
	q := u.Query()
	if s.opts.Width > 0 {
		q.Set("width", strconv.Itoa(s.opts.Width))
	}
	if s.opts.Height > 0 {
		q.Set("height", strconv.Itoa(s.opts.Height))
	}
	if s.opts.Facing != "" {
		q.Set("facing", s.opts.Facing)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *MJPEGSource) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("camera already open")
	}
	s.state = StatePending
	s.err = nil
	s.mu.Unlock()

	reqURL, err := s.requestURL()
	if err != nil {
		return s.fail(err)
	}

	// the stream outlives Open, so it gets its own context
	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		cancel()
		return s.fail(fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
	}
	req.Header.Set("Accept", "multipart/x-mixed-replace, image/jpeg")

	first := make(chan error, 1)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(req, first, done)

	timer := time.NewTimer(s.opts.AcquireTimeout)
	defer timer.Stop()

	select {
	case err := <-first:
		if err != nil {
			cancel()
			<-done
			s.clearRun()
			return s.fail(err)
		}
		logger.Info("Camera acquired", "device", s.Device())
		return nil
	case <-timer.C:
		cancel()
		<-done
		s.clearRun()
		return s.fail(fmt.Errorf("%w after %s", ErrTimeout, s.opts.AcquireTimeout))
	case <-ctx.Done():
		cancel()
		<-done
		s.clearRun()
		return s.fail(fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
	}
}

func (s *MJPEGSource) clearRun() {
	s.mu.Lock()
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
}

func (s *MJPEGSource) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.state = StateFor(err)
	s.mu.Unlock()
	return err
}

// run owns the HTTP response. It reports the outcome of acquisition on
// first exactly once, then keeps decoding until the stream ends.
func (s *MJPEGSource) run(req *http.Request, first chan<- error, done chan<- struct{}) {
	defer close(done)

	acquired := false
	report := func(err error) {
		if !acquired {
			acquired = true
			first <- err
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		report(fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
		return
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		report(err)
		return
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		report(fmt.Errorf("%w: %q is not an MJPEG stream", ErrDeviceUnavailable, resp.Header.Get("Content-Type")))
		return
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err != nil {
			if req.Context().Err() != nil {
				report(ErrTimeout)
				return
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			werr := fmt.Errorf("%w: %v", ErrDisconnected, err)
			if !acquired {
				report(fmt.Errorf("%w: stream ended before the first frame", ErrDeviceUnavailable))
				return
			}
			s.fail(werr)
			logger.Warn("Camera stream ended", "device", s.Device(), "error", err)
			return
		}

		img, _, err := image.Decode(part)
		part.Close()
		if err != nil {
			logger.Debug("Skipping undecodable frame", "error", err)
			continue
		}

		s.mu.Lock()
		s.frame = img
		s.seq++
		s.state = StateActive
		s.mu.Unlock()
		report(nil)
	}
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrPermissionDenied, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d", ErrDeviceUnavailable, code)
	case code < 200 || code > 299:
		return fmt.Errorf("%w: HTTP %d", ErrDeviceUnavailable, code)
	}
	return nil
}

func (s *MJPEGSource) Latest() (image.Image, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.seq, s.frame != nil
}

func (s *MJPEGSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MJPEGSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and waits for the reader to exit. It is safe to
// call more than once.
func (s *MJPEGSource) Close() error {
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
	s.mu.Unlock()
	return nil
}
