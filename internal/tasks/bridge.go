package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Nexgear75/MacScribe/internal/shared"
)

// progressBuffer is the capacity of a [Pending] progress channel.
const progressBuffer = 16

// Pending is a blocking operation running on its own goroutine.
//
// The worker never touches the registry or the connection: it publishes progress values
// of type P on a bounded channel and its outcome through [Pending.Wait]. Pendings from
// [RunBlocking] discard the oldest unread value when the buffer is full, so a slow
// consumer sees the newest samples instead of stalling the worker. Pendings from
// [RunStreaming] never discard: the worker waits for the consumer instead.
type Pending[T, P any] struct {
	progress chan P
	done     chan struct{}
	finished atomic.Bool
	result   T
	err      error
}

// RunBlocking starts fn on a new goroutine and returns immediately. Progress is sampled:
// values may be coalesced under backpressure.
//
// Panics inside fn are recovered and reported as [shared.ErrWorkerPanic].
func RunBlocking[T, P any](ctx context.Context, fn func(ctx context.Context, report func(P)) (T, error)) *Pending[T, P] {
	p := newPending[T, P]()
	p.start(ctx, fn, p.report)
	return p
}

// RunStreaming is [RunBlocking] with lossless, ordered delivery: report blocks until
// the consumer takes v or ctx ends. The consumer must keep draining until [Pending.Done],
// which [Await] does.
func RunStreaming[T, P any](ctx context.Context, fn func(ctx context.Context, report func(P)) (T, error)) *Pending[T, P] {
	p := newPending[T, P]()
	p.start(ctx, fn, func(v P) { p.deliver(ctx, v) })
	return p
}

func newPending[T, P any]() *Pending[T, P] {
	return &Pending[T, P]{
		progress: make(chan P, progressBuffer),
		done:     make(chan struct{}),
	}
}

func (p *Pending[T, P]) start(ctx context.Context, fn func(context.Context, func(P)) (T, error), report func(P)) {
	go func() {
		defer close(p.done)
		defer p.finished.Store(true)
		defer func() {
			if r := recover(); r != nil {
				p.err = fmt.Errorf("%w: %v", shared.ErrWorkerPanic, r)
			}
		}()

		p.result, p.err = fn(ctx, report)
	}()
}

// deliver publishes v, waiting for buffer space. Values are dropped only once ctx ends.
func (p *Pending[T, P]) deliver(ctx context.Context, v P) {
	select {
	case p.progress <- v:
	case <-ctx.Done():
	}
}

// report publishes v without blocking. Values reported after fn returns are dropped.
func (p *Pending[T, P]) report(v P) {
	if p.finished.Load() {
		return
	}
	for {
		select {
		case p.progress <- v:
			return
		default:
		}
		select {
		case <-p.progress:
		default:
		}
	}
}

// Progress returns the channel of reported values. It is never closed; select on [Pending.Done].
func (p *Pending[T, P]) Progress() <-chan P {
	return p.progress
}

// Done is closed once the worker goroutine has returned.
func (p *Pending[T, P]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the worker returns and yields its result.
func (p *Pending[T, P]) Wait() (T, error) {
	<-p.done
	return p.result, p.err
}

// Await consumes the worker's progress on the calling goroutine until it finishes.
//
// onProgress runs for every value received, including values still buffered at completion.
// When tick is non-nil, onTick receives its estimate every tick interval while the worker runs.
func Await[T, P any](p *Pending[T, P], onProgress func(P), tick *SyntheticProgress, onTick func(int)) (T, error) {
	var ticks <-chan time.Time
	if tick != nil && onTick != nil {
		ticker := time.NewTicker(tick.Interval())
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case v := <-p.progress:
			if onProgress != nil {
				onProgress(v)
			}
		case <-ticks:
			onTick(tick.Next())
		case <-p.done:
			for {
				select {
				case v := <-p.progress:
					if onProgress != nil {
						onProgress(v)
					}
				default:
					return p.Wait()
				}
			}
		}
	}
}

// SyntheticProgress estimates progress for work that reports none.
//
// Each call to Next advances by a fixed step up to a ceiling below 100; the caller sets
// 100 itself once the work has actually finished.
type SyntheticProgress struct {
	interval time.Duration
	step     int
	ceiling  int
	value    int
}

// NewSyntheticProgress returns an estimator advancing step every interval, capped at 95.
func NewSyntheticProgress(interval time.Duration, step int) *SyntheticProgress {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &SyntheticProgress{interval: interval, step: step, ceiling: 95}
}

// Interval returns the tick period.
func (s *SyntheticProgress) Interval() time.Duration {
	return s.interval
}

// Next advances the estimate and returns it.
func (s *SyntheticProgress) Next() int {
	s.value = min(s.value+s.step, s.ceiling)
	return s.value
}

// Value returns the current estimate.
func (s *SyntheticProgress) Value() int {
	return s.value
}
