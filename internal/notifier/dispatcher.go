package notifier

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
)

// Dispatcher fans completion events out to its sinks in the background.
type Dispatcher struct {
	timeout time.Duration
	sinks   []Sink
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration, sinks ...Sink) *Dispatcher {
	return &Dispatcher{timeout: timeout, sinks: sinks}
}

func (d *Dispatcher) Add(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch starts delivery of ev to every sink and returns immediately.
func (d *Dispatcher) Dispatch(ev models.CompletionEvent) {
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			if err := d.deliver(s, ev); err != nil {
				logger.Warn("Completion delivery failed", "sink", s.Name(), "error", err)
				return
			}
			logger.Debug("Completion delivered", "sink", s.Name(), "event", ev.ID)
		}(s)
	}
}

func (d *Dispatcher) deliver(s Sink, ev models.CompletionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return s.Deliver(ctx, ev)
}

// DeliverNow sends ev to every sink and waits, returning each sink's error.
func (d *Dispatcher) DeliverNow(ev models.CompletionEvent) map[string]error {
	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[string]error, len(d.sinks))
	for _, s := range d.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			err := d.deliver(s, ev)
			mu.Lock()
			results[s.Name()] = err
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return results
}

// Wait blocks until in-flight deliveries finish or timeout passes. It
// reports whether everything finished.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close waits for in-flight deliveries and releases sink connections.
func (d *Dispatcher) Close() error {
	if !d.Wait(d.timeout) {
		logger.Warn("Completion deliveries still running at shutdown")
	}
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close sink", "sink", s.Name(), "error", err)
			}
		}
	}
	return nil
}
