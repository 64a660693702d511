// Package reporter wires the accumulator, language resolver, scheduler and
// pulse client together and exposes the event-submission API to the host.
package reporter

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Rubikoid/codestats-reporter/internal/config"
	"github.com/Rubikoid/codestats-reporter/internal/language"
	"github.com/Rubikoid/codestats-reporter/internal/metrics"
	"github.com/Rubikoid/codestats-reporter/internal/pulse"
	"github.com/Rubikoid/codestats-reporter/internal/scheduler"
	"github.com/Rubikoid/codestats-reporter/internal/xp"
)

// Reporter owns the shared counter state and the flush pipeline. Producers
// only ever get its exported methods; the scheduler internals and the
// counter map are never handed out.
type Reporter struct {
	cfg      *config.Config
	acc      *xp.Accumulator
	resolver *language.Resolver
	sched    *scheduler.Scheduler
	httpSrv  *http.Server // nil when MetricsAddr == ""

	schedCancel context.CancelFunc
	schedDone   chan struct{}
	closeOnce   sync.Once
}

type options struct {
	sender scheduler.Sender
	clock  quartz.Clock
}

// Option customises a Reporter.
type Option func(*options)

// WithSender replaces the HTTP pulse client, for tests.
func WithSender(s scheduler.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithClock injects the scheduler clock, for tests.
func WithClock(c quartz.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New creates a Reporter and starts its scheduler goroutine; events enqueued
// through the recording methods are consumed immediately. Call Close for the
// final shutdown flush.
func New(cfg *config.Config, opts ...Option) *Reporter {
	o := options{clock: quartz.NewReal()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sender == nil {
		o.sender = pulse.NewClient(pulse.ClientConfig{})
	}

	acc := xp.NewAccumulator()
	sched := scheduler.New(
		acc,
		o.sender,
		func() (string, string) { return cfg.Server, cfg.Key },
		scheduler.WithClock(o.clock),
		scheduler.WithQuietWindow(cfg.QuietWindow),
	)

	r := &Reporter{
		cfg:       cfg,
		acc:       acc,
		resolver:  language.NewResolver(cfg.Languages),
		sched:     sched,
		schedDone: make(chan struct{}),
	}

	schedCtx, cancel := context.WithCancel(context.Background())
	r.schedCancel = cancel
	go func() {
		sched.Run(schedCtx)
		close(r.schedDone)
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.httpSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
	}

	return r
}

// RecordEdit counts one edit on doc's language and restarts the debounce
// window. Edits whose language cannot be resolved are not counted.
func (r *Reporter) RecordEdit(doc language.Document) {
	name, ok := r.resolver.Resolve(doc)
	if !ok {
		return
	}
	r.AddXP(name, 1)
}

// AddXP adds n XP directly to the counter for the given canonical language
// name and restarts the debounce window.
func (r *Reporter) AddXP(name string, n uint32) {
	r.acc.Add(name, n)
	metrics.EditsRecorded.Inc()
	metrics.XPPending.Set(float64(r.acc.Total()))
	r.sched.Enqueue(scheduler.Update)
}

// SendNow requests an immediate flush, bypassing the debounce window. The
// submission blocks until the scheduler accepts it.
func (r *Reporter) SendNow() {
	r.sched.Enqueue(scheduler.ForceSend)
}

// CancelPending abandons any scheduled flush. Accumulated counters stay put
// and go out with the next cycle.
func (r *Reporter) CancelPending() {
	r.sched.Enqueue(scheduler.Cancel)
}

// DumpStats renders the live counter map as text for the host to insert
// into a buffer. Read-only: nothing is cleared.
func (r *Reporter) DumpStats() string {
	snap := r.acc.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("C::S info:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "Lang: %s, count: %d\n", name, snap[name])
	}
	b.WriteString("C::S info end\n")
	return b.String()
}

// Run serves the metrics endpoint (when configured) and blocks until ctx is
// cancelled. The scheduler is already running; Run is not required for
// pulses to flow.
func (r *Reporter) Run(ctx context.Context) error {
	if r.httpSrv != nil {
		go func() {
			log.Info().Str("addr", r.cfg.MetricsAddr).Msg("metrics server listening")
			if err := r.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	log.Info().
		Str("server", r.cfg.Server).
		Bool("sending_enabled", r.cfg.Key != "").
		Dur("quiet_window", r.cfg.QuietWindow).
		Msg("reporter started")

	<-ctx.Done()
	log.Info().Msg("reporter stopping")
	return nil
}

// Close performs a best-effort final flush and shuts everything down. The
// ForceSend is handed to the scheduler before its context is cancelled, so
// the flush always runs; whether the pulse lands is up to the network.
func (r *Reporter) Close() {
	r.closeOnce.Do(func() {
		r.SendNow()
		r.schedCancel()
		<-r.schedDone

		if r.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.httpSrv.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("metrics server shutdown error")
			}
		}
	})
}
