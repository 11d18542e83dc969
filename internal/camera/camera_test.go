package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.Gray{Y: shade})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}
	return buf.Bytes()
}

// streamHandler writes frames as an MJPEG stream. With hold set it keeps
// the connection open until the client goes away.
func streamHandler(frame []byte, frames int, hold bool, seen chan<- *http.Request) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			select {
			case seen <- r:
			default:
			}
		}
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < frames; i++ {
			part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			if _, err := part.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}
}

func testOptions(url string) Options {
	return Options{URL: url, Width: 640, Height: 480, Facing: "user", AcquireTimeout: 2 * time.Second}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMJPEGSourceStreams(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := httptest.NewServer(streamHandler(testJPEG(t, 200), 3, true, seen))
	defer srv.Close()

	src := NewMJPEGSource(testOptions(srv.URL + "/stream.mjpg"))
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	req := <-seen
	q := req.URL.Query()
	if q.Get("width") != "640" || q.Get("height") != "480" || q.Get("facing") != "user" {
		t.Errorf("unexpected capture query %q", req.URL.RawQuery)
	}

	img, seq, ok := src.Latest()
	if !ok || img == nil || seq == 0 {
		t.Fatalf("Latest() = %v, %d, %v", img, seq, ok)
	}
	if img.Bounds().Dx() != 32 {
		t.Errorf("frame width = %d, want 32", img.Bounds().Dx())
	}
	if src.State() != StateActive {
		t.Errorf("State() = %v, want active", src.State())
	}

	if err := src.Open(context.Background()); err == nil {
		t.Error("expected error opening twice")
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, _, ok := src.Latest(); ok {
		t.Error("frame available after Close")
	}
	if src.State() != StateStopped {
		t.Errorf("State() after Close = %v, want stopped", src.State())
	}
	if src.Err() != nil {
		t.Errorf("Err() after Close = %v, want nil", src.Err())
	}
}

func TestMJPEGSourceAcquisitionErrors(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantErr   error
		wantState State
	}{
		{
			name:      "unauthorized",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			wantErr:   ErrPermissionDenied,
			wantState: StateDenied,
		},
		{
			name:      "forbidden",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			wantErr:   ErrPermissionDenied,
			wantState: StateDenied,
		},
		{
			name:      "not found",
			handler:   http.NotFound,
			wantErr:   ErrDeviceUnavailable,
			wantState: StateUnavailable,
		},
		{
			name: "not a stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
			wantErr:   ErrDeviceUnavailable,
			wantState: StateUnavailable,
		},
		{
			name: "no frames",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
				w.WriteHeader(http.StatusOK)
				w.(http.Flusher).Flush()
				<-r.Context().Done()
			},
			wantErr:   ErrTimeout,
			wantState: StateTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			opts := testOptions(srv.URL)
			opts.AcquireTimeout = 200 * time.Millisecond
			src := NewMJPEGSource(opts)
			err := src.Open(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open() error = %v, want %v", err, tt.wantErr)
			}
			if src.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", src.State(), tt.wantState)
			}
			if StateFor(err) != tt.wantState {
				t.Errorf("StateFor(%v) = %v, want %v", err, StateFor(err), tt.wantState)
			}
			_ = src.Close()
		})
	}
}

func TestMJPEGSourceDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src := NewMJPEGSource(testOptions(url))
	if err := src.Open(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestMJPEGSourceCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	src := NewMJPEGSource(testOptions(srv.URL))
	if err := src.Open(ctx); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Open() error = %v, want ErrTimeout", err)
	}
}

func TestMJPEGSourceDisconnect(t *testing.T) {
	srv := httptest.NewServer(streamHandler(testJPEG(t, 90), 2, false, nil))
	defer srv.Close()

	src := NewMJPEGSource(testOptions(srv.URL))
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	waitFor(t, func() bool { return src.Err() != nil })
	if !errors.Is(src.Err(), ErrDisconnected) {
		t.Errorf("Err() = %v, want ErrDisconnected", src.Err())
	}
	if src.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", src.State())
	}
}

func writeStills(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		img := image.NewGray(image.Rect(0, 0, 16, 12))
		for p := range img.Pix {
			img.Pix[p] = uint8(i * 40)
		}
		f, err := os.Create(filepath.Join(dir, "frame-"+string(rune('a'+i))+".png"))
		if err != nil {
			t.Fatalf("create still: %v", err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatalf("png.Encode failed: %v", err)
		}
		f.Close()
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	return dir
}

func TestLoadFrames(t *testing.T) {
	frames, err := LoadFrames(writeStills(t, 3))
	if err != nil {
		t.Fatalf("LoadFrames failed: %v", err)
	}
	if len(frames) != 3 {
		t.Errorf("got %d frames, want 3", len(frames))
	}

	if _, err := LoadFrames(t.TempDir()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("empty dir error = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := LoadFrames(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("missing dir error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestReplaySourcePlaysOnce(t *testing.T) {
	src := NewReplaySource(writeStills(t, 3), Options{FrameRate: 100})
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	if _, seq, ok := src.Latest(); !ok || seq != 1 {
		t.Fatalf("first frame seq = %d ok = %v", seq, ok)
	}

	waitFor(t, func() bool { return src.State() == StateDisconnected })
	if _, seq, _ := src.Latest(); seq != 3 {
		t.Errorf("final seq = %d, want 3", seq)
	}
	if !errors.Is(src.Err(), ErrDisconnected) {
		t.Errorf("Err() = %v, want ErrDisconnected", src.Err())
	}
}

func TestReplaySourceLoopAndCapture(t *testing.T) {
	src := NewReplaySource(writeStills(t, 2), Options{FrameRate: 200, Loop: true})
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	frames, err := Capture(ctx, src, 5, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(frames) != 5 {
		t.Errorf("captured %d frames, want 5", len(frames))
	}
	if src.State() != StateActive {
		t.Errorf("looping source state = %v, want active", src.State())
	}
}

func TestCaptureStopsOnSourceError(t *testing.T) {
	src := NewReplaySource(writeStills(t, 1), Options{FrameRate: 100})
	if err := src.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	frames, err := Capture(ctx, src, 10, 20*time.Millisecond)
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Capture error = %v, want ErrDisconnected", err)
	}
	if len(frames) > 1 {
		t.Errorf("captured %d frames from a single still", len(frames))
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "http://127.0.0.1:8081/stream.mjpg", want: "*camera.MJPEGSource"},
		{url: "https://cam.local/stream", want: "*camera.MJPEGSource"},
		{url: "file:///tmp/frames", want: "*camera.ReplaySource"},
		{url: "./frames", want: "*camera.ReplaySource"},
		{url: "rtsp://cam/stream", wantErr: true},
	}
	for _, tt := range tests {
		src, err := New(Options{URL: tt.url})
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) expected error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%q) error = %v", tt.url, err)
			continue
		}
		if got := typeName(src); got != tt.want {
			t.Errorf("New(%q) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *MJPEGSource:
		return "*camera.MJPEGSource"
	case *ReplaySource:
		return "*camera.ReplaySource"
	default:
		return "unknown"
	}
}

func TestStateString(t *testing.T) {
	for s := StatePending; s <= StateStopped; s++ {
		if s.String() == "unknown" {
			t.Errorf("State(%d) has no label", int(s))
		}
	}
	if State(99).String() != "unknown" {
		t.Error("out of range state should be unknown")
	}
}
