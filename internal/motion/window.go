package motion

// Window keeps the most recent motion samples in a ring buffer.
type Window struct {
	buf   []float64
	next  int
	count int
}

// NewWindow returns a window holding up to size samples.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]float64, size)}
}

// Push adds a sample, evicting the oldest once full.
func (w *Window) Push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of samples held.
func (w *Window) Len() int { return w.count }

// Average returns the mean of the held samples, 0 when empty.
func (w *Window) Average() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.buf[i]
	}
	return sum / float64(w.count)
}

// Max returns the largest held sample, 0 when empty.
func (w *Window) Max() float64 {
	var m float64
	for i := 0; i < w.count; i++ {
		if w.buf[i] > m {
			m = w.buf[i]
		}
	}
	return m
}

// Values returns the samples oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.count)
	start := 0
	if w.count == len(w.buf) {
		start = w.next
	}
	for i := 0; i < w.count; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

// Reset drops every sample.
func (w *Window) Reset() {
	w.next, w.count = 0, 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}
