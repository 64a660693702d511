// Package scheduler implements the debounced flush state machine that
// decides when accumulated XP is delivered to the telemetry service.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"

	"github.com/Rubikoid/codestats-reporter/internal/metrics"
	"github.com/Rubikoid/codestats-reporter/internal/pulse"
	"github.com/Rubikoid/codestats-reporter/internal/xp"
)

// DefaultQuietWindow is the idle duration after the most recent update
// before a scheduled flush fires. It doubles as the minimum interval
// between two actual sends.
const DefaultQuietWindow = 10 * time.Second

const eventBuffer = 64

// Event drives the scheduler state machine.
type Event int

const (
	// Update restarts the quiet-window timer. A pending flush fires only
	// once the window elapses with no further Update.
	Update Event = iota
	// ForceSend flushes immediately and cancels any pending timer. It
	// bypasses the debounce window and the minimum-interval check.
	ForceSend
	// Cancel drops any pending flush without touching accumulated counters.
	Cancel
)

// trigger is the consumed-once flush cause. The latest event overwrites it;
// there are never two outstanding triggers.
type trigger int

const (
	triggerNone trigger = iota
	triggerUpdate
	triggerForce
)

// ErrNoTrigger is returned by flush when no trigger is set. The event loop
// never does this; it guards direct misuse.
var ErrNoTrigger = errors.New("scheduler: flush without a trigger")

// Sender delivers one pulse to the telemetry service.
type Sender interface {
	Send(ctx context.Context, server, key string, p pulse.Pulse) error
}

// ConfigFunc returns the current server URL and API key, read fresh at every
// flush. An empty key disables sending; accumulation continues regardless.
type ConfigFunc func() (server, key string)

// Scheduler coalesces trigger events into rate-limited flushes. Events are
// consumed by a single goroutine (Run) strictly in submission order; at most
// one flush is in progress at any time, and no event is handled while one
// is, so producers may observe the timer frozen during a send.
type Scheduler struct {
	acc    *xp.Accumulator
	sender Sender
	config ConfigFunc
	clock  quartz.Clock
	quiet  time.Duration

	events   chan Event
	priority chan Event
	done     chan struct{}

	// State below is owned by the Run goroutine.
	trigger  trigger
	lastSend time.Time
	timer    *quartz.Timer
	timerC   <-chan time.Time
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock injects the clock; tests use quartz.NewMock.
func WithClock(c quartz.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithQuietWindow overrides the debounce window and minimum send interval.
func WithQuietWindow(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.quiet = d
		}
	}
}

// New creates a Scheduler over the given accumulator and sender. Run must be
// started for events to be consumed.
func New(acc *xp.Accumulator, sender Sender, config ConfigFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		acc:      acc,
		sender:   sender,
		config:   config,
		clock:    quartz.NewReal(),
		quiet:    DefaultQuietWindow,
		events:   make(chan Event, eventBuffer),
		priority: make(chan Event),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSend = s.clock.Now()
	return s
}

// Enqueue submits an event for processing. Update and Cancel go through a
// buffered channel; ForceSend goes through an unbuffered priority channel
// and blocks until the consumer accepts it, so a shutdown flush is never
// dropped under backpressure. After Run has returned, Enqueue is a no-op.
func (s *Scheduler) Enqueue(ev Event) {
	if ev == ForceSend {
		select {
		case s.priority <- ev:
		case <-s.done:
		}
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run consumes events until ctx is cancelled, preferring the priority
// channel so a shutdown ForceSend is never starved by an update burst. On
// cancellation one pending priority event is drained for a best-effort
// final flush.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case ev := <-s.priority:
			s.handle(ctx, ev)
			continue
		default:
		}

		select {
		case ev := <-s.priority:
			s.handle(ctx, ev)
		case ev := <-s.events:
			s.handle(ctx, ev)
		case <-s.timerC:
			s.timer = nil
			s.timerC = nil
			s.finishDebounce(ctx)
		case <-ctx.Done():
			// A shutdown ForceSend may already be queued; give it one
			// last chance, detached from the cancelled context so the
			// send still gets its own timeout.
			select {
			case ev := <-s.priority:
				s.handle(context.WithoutCancel(ctx), ev)
			default:
			}
			s.disarm()
			return
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, ev Event) {
	switch ev {
	case Update:
		s.trigger = triggerUpdate
		s.arm()
	case ForceSend:
		s.trigger = triggerForce
		s.disarm()
		s.finishDebounce(ctx)
	case Cancel:
		s.trigger = triggerNone
		s.disarm()
	}
}

// arm (re)starts the quiet-window timer. Each call replaces any prior
// deadline with now + quiet.
func (s *Scheduler) arm() {
	if s.timer == nil {
		s.timer = s.clock.NewTimer(s.quiet)
		s.timerC = s.timer.C
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timerC:
		default:
		}
	}
	s.timer.Reset(s.quiet)
}

func (s *Scheduler) disarm() {
	if s.timer == nil {
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timerC:
		default:
		}
	}
	s.timer = nil
	s.timerC = nil
}

func (s *Scheduler) finishDebounce(ctx context.Context) {
	if err := s.flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("flush failed")
	}
}

// flush consumes the current trigger and runs the delivery procedure:
// config check, snapshot, minimum-interval check, send. The accumulator is
// cleared before the interval check; a rate-limited snapshot is dropped,
// not restored. lastSend is stamped after a send attempt whether or not it
// succeeded.
func (s *Scheduler) flush(ctx context.Context) error {
	trig := s.trigger
	s.trigger = triggerNone
	if trig == triggerNone {
		return ErrNoTrigger
	}

	server, key := s.config()
	if key == "" {
		metrics.FlushesSkipped.WithLabelValues("no_key").Inc()
		return nil
	}

	snapshot := s.acc.SnapshotAndClear()
	metrics.XPPending.Set(0)
	if len(snapshot) == 0 {
		metrics.FlushesSkipped.WithLabelValues("empty").Inc()
		return nil
	}

	now := s.clock.Now()
	if now.Sub(s.lastSend) < s.quiet && trig != triggerForce {
		metrics.FlushesSkipped.WithLabelValues("rate_limited").Inc()
		log.Debug().
			Dur("since_last_send", now.Sub(s.lastSend)).
			Int("languages", len(snapshot)).
			Msg("pulse rate-limited, snapshot dropped")
		return nil
	}

	p := pulse.Build(snapshot, now)
	err := s.sender.Send(ctx, server, key, p)
	s.lastSend = now
	if err != nil {
		return err
	}
	metrics.PulsesSent.Inc()
	return nil
}
