package utils

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Timing is one named, completed interval
type Timing struct {
	Kind    string
	Message string
	Elapsed time.Duration
}

// Timer records named intervals in start order. The kind groups related
// intervals, e.g. "Generic" for host I/O or "Compute" for kernel execution.
type Timer struct {
	mu      sync.Mutex
	now     func() time.Time
	open    map[string]time.Time
	timings []Timing
}

func NewTimer() *Timer {
	return &Timer{now: time.Now, open: make(map[string]time.Time)}
}

func key(kind, message string) string { return kind + "\x00" + message }

// Start opens an interval. Starting an interval that is already open
// restarts it.
func (t *Timer) Start(kind, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[key(kind, message)] = t.now()
}

// Stop closes an interval and returns its duration
func (t *Timer) Stop(kind, message string) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(kind, message)
	start, ok := t.open[k]
	if !ok {
		return 0, fmt.Errorf("timer %s %q was not started", kind, message)
	}
	delete(t.open, k)
	elapsed := t.now().Sub(start)
	t.timings = append(t.timings, Timing{Kind: kind, Message: message, Elapsed: elapsed})
	return elapsed, nil
}

// Time runs fn inside an interval
func (t *Timer) Time(kind, message string, fn func() error) error {
	t.Start(kind, message)
	err := fn()
	_, _ = t.Stop(kind, message)
	return err
}

// Timings returns the completed intervals
func (t *Timer) Timings() []Timing {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Timing, len(t.timings))
	copy(out, t.timings)
	return out
}

// Summary formats completed intervals one per line
func (t *Timer) Summary() string {
	var sb strings.Builder
	for _, tm := range t.Timings() {
		sb.WriteString(fmt.Sprintf("[%s] %-20s %v\n", tm.Kind, tm.Message, tm.Elapsed))
	}
	return sb.String()
}
