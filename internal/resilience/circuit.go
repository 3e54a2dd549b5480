package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single trial request through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// BreakerConfig tunes a breaker for one backing store.
type BreakerConfig struct {
	// Target names the store in metrics, logs and readiness output, e.g.
	// "catalog" or "commit".
	Target string
	// MinRequests is the number of outcomes needed before the failure ratio
	// can open the breaker.
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	// Logger receives transition events when the context carries none.
	Logger *zerolog.Logger
}

// Status is a point-in-time view of a breaker.
type Status struct {
	Target  string
	State   State
	Failed  int
	Total   int
	RetryAt time.Time
}

// window counts outcomes since the last transition.
type window struct {
	ok, failed int
}

func (w window) total() int { return w.ok + w.failed }

// halve keeps the ratio while letting old outcomes fade.
func (w *window) halve() {
	w.ok = (w.ok + 1) / 2
	w.failed = (w.failed + 1) / 2
}

// Breaker is a failure-ratio circuit breaker guarding one backing store.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    State
	counts   window
	openedAt time.Time
	trial    bool
	now      func() time.Time
}

// NewBreaker builds a closed breaker. Zero config values fall back to one
// request, a 50% failure ratio and a 30s cool-off.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	cfg.MinRequests = max(cfg.MinRequests, 1)
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	cfg.FailureRatio = min(cfg.FailureRatio, 1)
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	b := &Breaker{cfg: cfg, state: Closed, now: time.Now}
	b.publishState()
	return b
}

// Target is the store this breaker guards.
func (b *Breaker) Target() string { return b.cfg.Target }

// Allow reports whether a request may reach the store. Once the cool-off has
// passed an open breaker admits exactly one trial; everyone else is refused
// until that trial reports back.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.moveTo(ctx, HalfOpen)
		b.trial = true
		return true
	default:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.trial = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
		return
	}

	if success {
		b.counts.ok++
	} else {
		b.counts.failed++
	}
	total := b.counts.total()
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.counts.failed)/float64(total) >= b.cfg.FailureRatio {
		b.moveTo(ctx, Open)
		return
	}
	if total > 2*b.cfg.MinRequests {
		b.counts.halve()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns the state with the current counts. RetryAt is set while the
// breaker is open.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Status{
		Target: b.cfg.Target,
		State:  b.state,
		Failed: b.counts.failed,
		Total:  b.counts.total(),
	}
	if b.state == Open {
		s.RetryAt = b.openedAt.Add(b.cfg.OpenFor)
	}
	return s
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.counts = window{}
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.publishState()

	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.cfg.Target, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.cfg.Target).Inc()
	}

	logger := b.cfg.Logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = l
	}
	evt := logger.Info().
		Str("target", b.cfg.Target).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.cfg.Target).Set(b.state.gauge())
	}
}
