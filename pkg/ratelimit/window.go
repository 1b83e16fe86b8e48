package ratelimit

import "time"

// Window is a fixed-capacity ring of the most recent request timestamps.
// Once full, each Add evicts the oldest sample.
//
// Window is not safe for concurrent use; LeakyBucket guards it.
type Window struct {
	samples []time.Time
	head    int // index of the most recent sample
	written int // total insertions, saturating at capacity
}

// NewWindow creates a window holding up to capacity samples.
func NewWindow(capacity int) (*Window, error) {
	if capacity <= 0 {
		return nil, &ConfigError{Field: "window capacity", Value: capacity}
	}
	return &Window{
		samples: make([]time.Time, capacity),
		head:    -1,
	}, nil
}

// Add records a sample, evicting the oldest one if the window is full.
func (w *Window) Add(t time.Time) {
	w.head = floorMod(w.head+1, len(w.samples))
	w.samples[w.head] = t
	if w.written < len(w.samples) {
		w.written++
	}
}

// Get returns the sample offset positions older than the most recent one.
// Offsets wrap modulo the capacity, so Get(-1) is Get(Cap()-1). The boolean
// is false when the addressed slot has never been written.
func (w *Window) Get(offset int) (time.Time, bool) {
	if w.written == 0 {
		return time.Time{}, false
	}
	n := len(w.samples)
	idx := floorMod(w.head-floorMod(offset, n), n)
	// Slots [0, written) are filled until the ring wraps for the first time.
	if w.written < len(w.samples) && idx >= w.written {
		return time.Time{}, false
	}
	return w.samples[idx], true
}

// IsFull reports whether capacity samples have been written at least once.
func (w *Window) IsFull() bool {
	return w.written == len(w.samples)
}

// Len returns the number of retained samples.
func (w *Window) Len() int { return w.written }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.samples) }

func floorMod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}
