// Package progress defines the sink through which the setup pipeline reports
// progress and observes cancellation, plus the presentation variants that
// implement it.
package progress

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives progress from the pipeline. ReportProgress and Log are called
// from the pipeline goroutine; IsCancelled is polled at chunk and entry
// boundaries.
type Sink interface {
	// ReportProgress publishes a status message and a completion fraction in
	// [0, 1].
	ReportProgress(message string, fraction float64)
	// IsCancelled reports whether the user asked to stop.
	IsCancelled() bool
	// Log records a diagnostic line for the current run.
	Log(message string)
}

// Noop discards progress and is never cancelled.
type Noop struct{}

func (Noop) ReportProgress(string, float64) {}
func (Noop) IsCancelled() bool              { return false }
func (Noop) Log(string)                     {}

// WithContext returns a sink that also reports cancellation once ctx is
// done, so a cancelled caller stops the pipeline at its next check.
func WithContext(ctx context.Context, sink Sink) Sink {
	if sink == nil {
		sink = Noop{}
	}
	return &contextSink{Sink: sink, ctx: ctx}
}

type contextSink struct {
	Sink
	ctx context.Context
}

func (s *contextSink) IsCancelled() bool {
	return s.ctx.Err() != nil || s.Sink.IsCancelled()
}

// State is a snapshot of a Tracker.
type State struct {
	Text      string
	Fraction  float64
	Dirty     bool
	Cancelled bool
	Done      bool
	Logs      []string
}

// Tracker is the shared state between the pipeline goroutine and a polling
// presenter. The pipeline writes progress; the presenter reads snapshots and
// is the only writer of the cancel bit.
type Tracker struct {
	mu        sync.Mutex
	text      string
	fraction  float64
	dirty     bool
	cancelled bool
	done      bool
	logs      []string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) ReportProgress(message string, fraction float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = message
	t.fraction = clamp(fraction)
	t.dirty = true
}

func (t *Tracker) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Tracker) Log(message string) {
	t.mu.Lock()
	t.logs = append(t.logs, message)
	t.mu.Unlock()
	slog.Debug("progress_log", "message", message)
}

// Cancel sets the cancel bit. The pipeline observes it at its next check.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Finish marks the run as over so presenters can stop polling.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.dirty = true
}

// Done reports whether Finish was called. Unlike Snapshot it leaves the
// dirty flag alone.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Snapshot returns the current state and clears the dirty flag.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := State{
		Text:      t.text,
		Fraction:  t.fraction,
		Dirty:     t.dirty,
		Cancelled: t.cancelled,
		Done:      t.done,
		Logs:      append([]string(nil), t.logs...),
	}
	t.dirty = false
	return s
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
