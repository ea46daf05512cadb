package app

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"fleetarbiter/internal/attest"
	"fleetarbiter/internal/events"
	"fleetarbiter/internal/state"
	"fleetarbiter/internal/types"
)

const (
	AppVersion uint64 = 1

	DefaultVictoryTimeout = 30 * time.Second
	DefaultSweepInterval  = time.Second
)

type Options struct {
	// Verifier checks receipts. Required.
	Verifier attest.Verifier

	Clock          clock.Clock
	Logger         cmtlog.Logger
	Metrics        *Metrics
	Tracer         trace.Tracer
	VictoryTimeout time.Duration
	SweepInterval  time.Duration
	EventBacklog   int
}

// Arbiter owns the session store. Every command and every sweep runs its
// whole read-validate-mutate sequence under mu, so transitions are totally
// ordered across all sessions.
type Arbiter struct {
	verifier attest.Verifier
	clock    clock.Clock
	logger   cmtlog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	events   *events.Log

	victoryTimeout time.Duration
	sweepInterval  time.Duration

	// Set once an ABCIApp owns the arbiter. From then on only blocks change
	// state.
	blockDriven atomic.Bool

	mu sync.Mutex
	st *state.State
}

func New(opts Options) (*Arbiter, error) {
	if opts.Verifier == nil {
		return nil, fmt.Errorf("app: verifier is required")
	}
	if opts.VictoryTimeout < 0 || opts.SweepInterval < 0 {
		return nil, fmt.Errorf("app: durations must not be negative")
	}
	a := &Arbiter{
		verifier:       opts.Verifier,
		clock:          opts.Clock,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		victoryTimeout: opts.VictoryTimeout,
		sweepInterval:  opts.SweepInterval,
		st:             state.NewState(),
	}
	if a.clock == nil {
		a.clock = clock.New()
	}
	if a.logger == nil {
		a.logger = cmtlog.NewNopLogger()
	}
	a.logger = a.logger.With("module", types.ModuleName)
	if a.metrics == nil {
		a.metrics = NewMetrics()
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer("fleetarbiter/internal/app")
	}
	if a.victoryTimeout == 0 {
		a.victoryTimeout = DefaultVictoryTimeout
	}
	if a.sweepInterval == 0 {
		a.sweepInterval = DefaultSweepInterval
	}
	a.events = events.New(opts.EventBacklog,
		events.WithClock(a.clock),
		events.WithDropHook(a.metrics.eventsDropped.Inc),
	)
	return a, nil
}

// Events exposes the broadcast log for subscribers.
func (a *Arbiter) Events() *events.Log { return a.events }

func (a *Arbiter) Metrics() *Metrics { return a.metrics }

func (a *Arbiter) VictoryTimeout() time.Duration { return a.victoryTimeout }

// BlockDriven reports whether state changes only through ABCI blocks.
func (a *Arbiter) BlockDriven() bool { return a.blockDriven.Load() }

// emit publishes an event. Callers hold mu so events appear in transition
// order.
func (a *Arbiter) emit(kind, session, msg string) {
	a.events.Publish(kind, session, msg)
}

func (a *Arbiter) sessionCountChanged() {
	a.metrics.sessions.Set(float64(len(a.st.Sessions)))
}
