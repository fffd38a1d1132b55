package orchestrator

import (
	"context"
	"strings"
	"time"

	"insightd/internal/device"
	"insightd/internal/dispatch"
	"insightd/internal/provider"
	"insightd/internal/query"
	"insightd/internal/snapcache"
	"insightd/pkg/types"
)

// Options tune a single insight request.
type Options struct {
	// PreferredProviders overrides the configured default order.
	PreferredProviders []string
	// Freshness overrides the per-operation freshness window.
	Freshness time.Duration
	// Source names a registered data source; empty uses the primary collector.
	Source string
	// ForceRefresh collects a new snapshot regardless of cache state.
	ForceRefresh bool
}

// GetDeviceInsights returns a general health summary.
func (o *Orchestrator) GetDeviceInsights(ctx context.Context, opts Options) (types.InsightResult, error) {
	return o.run(ctx, provider.RequestInsights, "", opts)
}

// GetBatteryAdvice returns battery care advice from the battery and power fields.
func (o *Orchestrator) GetBatteryAdvice(ctx context.Context, opts Options) (types.InsightResult, error) {
	return o.run(ctx, provider.RequestBattery, "", opts)
}

// GetPerformanceTips returns advice from the memory, CPU, storage and process fields.
func (o *Orchestrator) GetPerformanceTips(ctx context.Context, opts Options) (types.InsightResult, error) {
	return o.run(ctx, provider.RequestPerformance, "", opts)
}

// QueryDeviceInfo answers a free-text question using the snapshot fields the
// question is about. A blank prompt returns ErrEmptyPrompt alongside a
// result carrying the error name.
func (o *Orchestrator) QueryDeviceInfo(ctx context.Context, prompt string, opts Options) (types.InsightResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return types.InsightResult{
			Success:   false,
			Kind:      string(provider.RequestQuery),
			Error:     ErrNameEmptyPrompt,
			Timestamp: o.now(),
		}, ErrEmptyPrompt
	}
	return o.run(ctx, provider.RequestQuery, prompt, opts)
}

// collectorFor resolves the cache key and collector for a source name.
func (o *Orchestrator) collectorFor(source string) (string, device.Collector, error) {
	if source == "" || source == device.DefaultSource {
		return device.DefaultSource, o.collector, nil
	}
	src, err := o.reg.Source(source)
	if err != nil {
		return "", nil, err
	}
	return source, src, nil
}

func (o *Orchestrator) run(ctx context.Context, kind provider.RequestKind, prompt string, opts Options) (types.InsightResult, error) {
	res := types.InsightResult{Kind: string(kind)}
	key, collector, err := o.collectorFor(opts.Source)
	if err != nil {
		return res, err
	}
	res.Source = key

	freshness := opts.Freshness
	if freshness <= 0 {
		freshness = o.cfg.freshness(kind)
	}
	if opts.ForceRefresh {
		freshness = 0
	}

	var entry snapcache.Entry
	if collector == nil {
		err = errNoCollector
	} else {
		entry, err = o.cache.GetOrCollect(ctx, key, collector, freshness)
	}
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		o.log.Warn().Err(err).Str("source", key).Str("kind", string(kind)).Msg("no snapshot available")
		o.pub.Publish(Event{Name: EventCollectionFailed, Provider: key, Fields: map[string]any{"error": err.Error()}})
		res.Error = ErrNameCollection + ": " + err.Error()
		res.Timestamp = o.now()
		return res, nil
	}
	snap := entry.Snapshot
	res.CollectedAt = snap.CollectedAt()
	res.Stale = entry.Stale
	if entry.Stale {
		o.pub.Publish(Event{Name: EventStaleServed, Provider: key, Fields: map[string]any{"collected_at": snap.CollectedAt()}})
	}

	var fields map[string]any
	if kind == provider.RequestQuery {
		fields = query.Route(prompt, snap)
	} else {
		fields = query.FieldsFor(kind, snap)
	}
	res.SnapshotExcerpt = fields

	preferred := opts.PreferredProviders
	if len(preferred) == 0 {
		preferred = o.cfg.DefaultProviders
	}
	dr := o.disp.Dispatch(ctx, dispatch.Request{
		PreferredProviders: preferred,
		Payload:            query.Compose(kind, prompt, fields),
		Timeout:            o.cfg.DispatchTimeout,
		RetryAttempts:      o.cfg.RetryAttempts,
	})
	res.Attempts = attemptLogs(dr.Attempts)
	res.Success = true
	res.Timestamp = o.now()
	if dr.Success {
		used := dr.ProviderUsed
		res.ProviderUsed = &used
		res.Content = dr.Content
		return res, nil
	}

	res.Fallback = true
	res.Content = FallbackAdvice(kind, snap)
	o.pub.Publish(Event{Name: EventFallbackUsed, Fields: map[string]any{"kind": string(kind), "attempts": len(dr.Attempts)}})
	return res, nil
}

func attemptLogs(in []dispatch.Attempt) []types.AttemptLog {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.AttemptLog, len(in))
	for i, a := range in {
		out[i] = types.AttemptLog{
			Provider:  a.Provider,
			Try:       a.Try,
			Outcome:   a.Outcome,
			Error:     a.Error,
			LatencyMs: a.Latency.Milliseconds(),
		}
	}
	return out
}
