// Package circuit wraps outbound provider calls in a breaker so a failing
// upstream degrades the pipeline instead of stalling it.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"

	"venue-rails/pkg/logging"
	"venue-rails/pkg/metrics"
)

// State is the breaker position. The numeric values feed the state gauge.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config tunes one breaker.
type Config struct {
	Name string

	OperationTimeout    time.Duration // per-call deadline
	OpenFor             time.Duration // cool-off before the first probe
	MaxConsecFailures   int           // consecutive failures that trip the breaker
	WindowSize          int           // how many recent calls the rates look at
	FailureRate         float64       // 0..1 window failure fraction that trips
	SlowCallThreshold   time.Duration // calls above this count as slow
	SlowCallRate        float64       // 0..1 window slow fraction that trips
	HalfOpenMaxInFlight int           // concurrent probes allowed, usually 1
}

// ErrOpen is returned when the breaker short-circuits a call.
var ErrOpen = errors.New("circuit open")

type sample struct {
	ok   bool
	slow bool
}

// Breaker tracks a ring of recent call outcomes plus running failure and
// slow counters, so rate checks never rescan the window.
type Breaker struct {
	cfg Config
	log *logging.ComponentLogger

	mu         sync.Mutex
	st         State
	nextProbe  time.Time
	probes     int
	consecFail int

	win   []sample
	idx   int
	used  int
	fails int
	slows int
}

func New(cfg Config, log *logging.Logger) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.HalfOpenMaxInFlight <= 0 {
		cfg.HalfOpenMaxInFlight = 1
	}
	b := &Breaker{
		cfg: cfg,
		st:  Closed,
		win: make([]sample, cfg.WindowSize),
	}
	if log != nil {
		b.log = log.WithComponent("circuit")
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(float64(Closed))
	return b
}

// State reports the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

// Do runs op under the breaker. While open it short-circuits to fallback,
// or to ErrOpen when no fallback is given. op returns only an error; outputs
// travel through closure variables.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error, fallback func(ctx context.Context, cause error) error) error {
	probe, ok := b.admit()
	if !ok {
		metrics.BreakerCalls.WithLabelValues(b.cfg.Name, "short_circuit").Inc()
		if fallback != nil {
			return fallback(ctx, ErrOpen)
		}
		return ErrOpen
	}

	if b.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.OperationTimeout)
		defer cancel()
	}

	start := time.Now()
	err := op(ctx)
	dur := time.Since(start)
	metrics.BreakerLatency.WithLabelValues(b.cfg.Name).Observe(dur.Seconds())
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		metrics.BreakerCalls.WithLabelValues(b.cfg.Name, "timeout").Inc()
	}

	b.settle(probe, err, dur)

	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

// admit decides whether the call may proceed. The probe flag marks calls
// admitted through the half-open gate; settle uses it to release the slot.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case Open:
		if time.Now().Before(b.nextProbe) {
			return false, false
		}
		b.transition(HalfOpen)
		b.probes = 1
		return true, true
	case HalfOpen:
		if b.probes >= b.cfg.HalfOpenMaxInFlight {
			return false, false
		}
		b.probes++
		return true, true
	default:
		return false, true
	}
}

// settle folds one finished call back into the breaker.
func (b *Breaker) settle(probe bool, err error, dur time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.probes > 0 {
		b.probes--
	}
	slow := b.cfg.SlowCallThreshold > 0 && dur > b.cfg.SlowCallThreshold
	if slow {
		metrics.BreakerCalls.WithLabelValues(b.cfg.Name, "slow").Inc()
	}

	if err != nil {
		b.consecFail++
		metrics.BreakerCalls.WithLabelValues(b.cfg.Name, "failure").Inc()
		b.observe(false, slow)
		switch b.st {
		case HalfOpen:
			b.trip()
		case Closed:
			if b.overThreshold() {
				b.trip()
			}
		}
		return
	}

	b.consecFail = 0
	metrics.BreakerCalls.WithLabelValues(b.cfg.Name, "success").Inc()
	b.observe(true, slow)
	if b.st == HalfOpen && b.probes == 0 {
		b.transition(Closed)
	}
}

// observe pushes one outcome into the ring, retiring the sample it evicts.
func (b *Breaker) observe(ok, slow bool) {
	if b.used == len(b.win) {
		old := b.win[b.idx]
		if !old.ok {
			b.fails--
		}
		if old.slow {
			b.slows--
		}
	} else {
		b.used++
	}
	b.win[b.idx] = sample{ok: ok, slow: slow}
	b.idx = (b.idx + 1) % len(b.win)
	if !ok {
		b.fails++
	}
	if slow {
		b.slows++
	}
}

// overThreshold checks the closed-state trip conditions. Callers hold b.mu.
func (b *Breaker) overThreshold() bool {
	if b.cfg.MaxConsecFailures > 0 && b.consecFail >= b.cfg.MaxConsecFailures {
		return true
	}
	if b.used == 0 {
		return false
	}
	if b.cfg.FailureRate > 0 && float64(b.fails)/float64(b.used) >= b.cfg.FailureRate {
		return true
	}
	if b.cfg.SlowCallRate > 0 && float64(b.slows)/float64(b.used) >= b.cfg.SlowCallRate {
		return true
	}
	return false
}

func (b *Breaker) trip() {
	b.transition(Open)
	b.nextProbe = time.Now().Add(b.cfg.OpenFor)
}

func (b *Breaker) transition(st State) {
	if b.st == st {
		return
	}
	from := b.st
	b.st = st
	metrics.BreakerState.WithLabelValues(b.cfg.Name).Set(float64(st))
	if b.log != nil {
		b.log.Info("breaker state change",
			logging.String("name", b.cfg.Name),
			logging.String("from", from.String()),
			logging.String("to", st.String()))
	}
}
