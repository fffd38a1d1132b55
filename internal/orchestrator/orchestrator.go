package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"insightd/internal/device"
	"insightd/internal/dispatch"
	"insightd/internal/registry"
	"insightd/internal/snapcache"
)

// State is the lifecycle state of the orchestrator.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateClosed       State = "closed"
)

// Deps are the collaborators an Orchestrator composes.
type Deps struct {
	Registry   *registry.Registry
	Cache      *snapcache.Cache
	Dispatcher *dispatch.Dispatcher
	// Collector produces the primary ("default") snapshot.
	Collector device.Collector
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	reg       *registry.Registry
	cache     *snapcache.Cache
	disp      *dispatch.Dispatcher
	collector device.Collector
	cfg       Config
	pub       EventPublisher
	log       zerolog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	state     State
	startTime time.Time
}

// New constructs an Orchestrator. Missing Cache or Dispatcher are created
// with defaults over the given registry.
func New(d Deps, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	if d.Registry == nil {
		d.Registry = registry.New(cfg.Logger)
	}
	if d.Cache == nil {
		d.Cache = snapcache.New(cfg.Logger)
	}
	if d.Dispatcher == nil {
		d.Dispatcher = dispatch.New(d.Registry, dispatch.Config{}, cfg.Logger)
	}
	return &Orchestrator{
		reg:       d.Registry,
		cache:     d.Cache,
		disp:      d.Dispatcher,
		collector: d.Collector,
		cfg:       cfg,
		pub:       cfg.Publisher,
		log:       cfg.Logger.With().Str("component", "orchestrator").Logger(),
		now:       time.Now,
		state:     StateInitializing,
		startTime: time.Now(),
	}
}

// Init connects every registered provider. Connect failures are logged and
// published but do not fail Init; those providers are skipped by failover.
func (o *Orchestrator) Init(ctx context.Context) error {
	for _, name := range o.reg.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.reg.Connect(ctx, name); err != nil {
			o.log.Warn().Err(err).Str("provider", name).Msg("provider unavailable at startup")
			o.pub.Publish(Event{Name: EventProviderConnectFailed, Provider: name, Fields: map[string]any{"error": err.Error()}})
		}
	}
	o.mu.Lock()
	o.state = StateReady
	o.mu.Unlock()
	o.log.Info().Int("providers", len(o.reg.Names())).Msg("orchestrator ready")
	return nil
}

// Cleanup disconnects every provider and drops all cached snapshots.
func (o *Orchestrator) Cleanup() {
	o.reg.DisconnectAll()
	o.cache.InvalidateAll()
	o.mu.Lock()
	o.state = StateClosed
	o.mu.Unlock()
	o.pub.Publish(Event{Name: EventCleanup})
}

// Ready reports whether Init completed and Cleanup has not run.
func (o *Orchestrator) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state == StateReady
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}
