// Package dispatch sends a payload to AI providers in preference order,
// failing over to the next candidate when a call fails.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"insightd/internal/provider"
	"insightd/internal/registry"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 1
	DefaultBackoffBase   = 250 * time.Millisecond
	DefaultBackoffMax    = 4 * time.Second
)

// Config holds dispatcher-wide defaults used when a Request leaves a field
// zero.
type Config struct {
	Timeout       time.Duration
	RetryAttempts int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = DefaultBackoffMax
		if c.BackoffMax < c.BackoffBase {
			c.BackoffMax = c.BackoffBase
		}
	}
	return c
}

// Request is one dispatch.
type Request struct {
	// PreferredProviders is tried in order; empty means registry order.
	PreferredProviders []string
	// Capability defaults to text-generation.
	Capability string
	Payload    provider.Payload
	// Timeout bounds each call.
	Timeout time.Duration
	// RetryAttempts is the number of calls made to each candidate.
	RetryAttempts int
}

// Attempt records one backend call.
type Attempt struct {
	Provider string
	Try      int
	Outcome  string
	Error    string
	Latency  time.Duration
}

// OutcomeOK marks a successful attempt.
const OutcomeOK = "ok"

// Result is the outcome of Dispatch. ProviderUsed is empty unless Success.
type Result struct {
	ID           string
	Success      bool
	ProviderUsed string
	Content      string
	Attempts     []Attempt
}

// Registry is the part of the provider registry the dispatcher needs.
type Registry interface {
	Get(name string) (provider.Descriptor, error)
	ListByCapability(capability string) []provider.Descriptor
	Generator(name string) (provider.Generator, error)
	MarkUsed(name string, at time.Time)
	MarkFailed(name string, err error, at time.Time)
}

var _ Registry = (*registry.Registry)(nil)

// Dispatcher is safe for concurrent use; each Dispatch is sequential.
type Dispatcher struct {
	reg   Registry
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// New returns a Dispatcher over reg.
func New(reg Registry, cfg Config, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:   reg,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("component", "dispatch").Logger(),
		now:   time.Now,
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Config returns the effective defaults.
func (d *Dispatcher) Config() Config { return d.cfg }

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Candidates resolves the ordered provider list for req.
func (d *Dispatcher) Candidates(req Request) []string {
	capability := req.Capability
	if capability == "" {
		capability = provider.CapTextGeneration
	}
	var out []string
	seen := make(map[string]struct{})
	for _, name := range req.PreferredProviders {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		desc, err := d.reg.Get(name)
		if err != nil {
			d.log.Debug().Str("provider", name).Msg("preferred provider not registered")
			continue
		}
		if desc.Kind != provider.KindAIProvider || desc.State != provider.StateConnected || !desc.HasCapability(capability) {
			d.log.Debug().Str("provider", name).Str("state", string(desc.State)).Msg("preferred provider not usable")
			continue
		}
		out = append(out, name)
	}
	if len(out) > 0 {
		return out
	}
	for _, desc := range d.reg.ListByCapability(capability) {
		if desc.Kind == provider.KindAIProvider {
			out = append(out, desc.Name)
		}
	}
	return out
}

func (d *Dispatcher) backoff(try int) time.Duration {
	b := d.cfg.BackoffBase
	for i := 1; i < try; i++ {
		b *= 2
		if b >= d.cfg.BackoffMax {
			return d.cfg.BackoffMax
		}
	}
	return b
}

// Dispatch tries candidates until one returns non-empty content. Backend
// failures are recorded in Attempts and never returned as errors; when every
// candidate fails Success is false. Cancelling ctx stops the loop.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	res := Result{ID: uuid.NewString()}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}
	tries := req.RetryAttempts
	if tries <= 0 {
		tries = d.cfg.RetryAttempts
	}
	log := d.log.With().Str("dispatch_id", res.ID).Str("kind", string(req.Payload.Kind)).Logger()

	candidates := d.Candidates(req)
	if len(candidates) == 0 {
		log.Debug().Msg("no connected provider for capability")
	}
	for _, name := range candidates {
		for try := 1; try <= tries; try++ {
			if try > 1 {
				if err := d.sleep(ctx, d.backoff(try-1)); err != nil {
					res.Attempts = append(res.Attempts, Attempt{Provider: name, Try: try, Outcome: string(provider.FailureCanceled), Error: err.Error()})
					return d.exhausted(log, res)
				}
			}
			if err := ctx.Err(); err != nil {
				res.Attempts = append(res.Attempts, Attempt{Provider: name, Try: try, Outcome: string(provider.FailureCanceled), Error: err.Error()})
				return d.exhausted(log, res)
			}
			text, att := d.call(ctx, name, try, timeout, req.Payload)
			res.Attempts = append(res.Attempts, att)
			if att.Outcome == OutcomeOK {
				res.Success = true
				res.ProviderUsed = name
				res.Content = text
				log.Debug().Str("provider", name).Int("attempts", len(res.Attempts)).Msg("dispatch succeeded")
				return res
			}
			kind := provider.FailureKind(att.Outcome)
			log.Warn().Str("provider", name).Int("try", try).Str("outcome", att.Outcome).Str("error", att.Error).Msg("provider call failed")
			if kind == provider.FailureCanceled {
				return d.exhausted(log, res)
			}
			if !kind.Retryable() {
				break
			}
		}
	}
	return d.exhausted(log, res)
}

func (d *Dispatcher) exhausted(log zerolog.Logger, res Result) Result {
	dispatchExhausted.Inc()
	log.Info().Int("attempts", len(res.Attempts)).Msg("all providers failed")
	return res
}

type callResult struct {
	resp provider.Response
	err  error
}

// call runs one Generate bounded by timeout. A backend that ignores its
// context is abandoned when the deadline passes; its goroutine finishes on
// its own.
func (d *Dispatcher) call(ctx context.Context, name string, try int, timeout time.Duration, p provider.Payload) (text string, att Attempt) {
	att = Attempt{Provider: name, Try: try}
	start := d.now()
	defer func() {
		att.Latency = d.now().Sub(start)
		dispatchAttempts.WithLabelValues(name, att.Outcome).Inc()
		dispatchDuration.WithLabelValues(name).Observe(att.Latency.Seconds())
	}()

	gen, err := d.reg.Generator(name)
	if err != nil {
		att.Outcome = string(provider.FailureTransport)
		att.Error = err.Error()
		return "", att
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: provider.Fail(provider.FailureInvalidResponse, errors.New("backend panicked"))}
			}
		}()
		resp, err := gen.Generate(cctx, p)
		done <- callResult{resp: resp, err: err}
	}()

	var cr callResult
	select {
	case cr = <-done:
	case <-cctx.Done():
		cr.err = cctx.Err()
	}

	// The per-call deadline classifies as Timeout; a cancelled parent wins.
	if cr.err != nil && ctx.Err() != nil {
		cr.err = provider.Fail(provider.FailureCanceled, ctx.Err())
	}
	if cr.err == nil && strings.TrimSpace(cr.resp.Text) == "" {
		cr.err = provider.Fail(provider.FailureInvalidResponse, errors.New("empty content"))
	}

	at := d.now()
	if cr.err != nil {
		att.Outcome = string(provider.Classify(cr.err))
		att.Error = cr.err.Error()
		if att.Outcome != string(provider.FailureCanceled) {
			d.reg.MarkFailed(name, cr.err, at)
		}
		return "", att
	}
	att.Outcome = OutcomeOK
	d.reg.MarkUsed(name, at)
	return cr.resp.Text, att
}
