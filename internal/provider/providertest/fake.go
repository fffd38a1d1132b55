// Package providertest provides in-memory backends for tests.
package providertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"insightd/internal/device"
	"insightd/internal/provider"
)

// Step scripts one Generate call: either Text or Err. Block makes the call
// wait for ctx to finish, simulating a hung backend.
type Step struct {
	Text  string
	Err   error
	Block bool
}

// Generator is a scripted provider.Generator. Once the script runs out the
// last step repeats. ConnectDelay makes Connect take that long, or until its
// context is done.
type Generator struct {
	mu           sync.Mutex
	Steps        []Step
	ConnectErr   error
	ConnectDelay time.Duration
	calls        int
	connects     int
	closes       int
	payloads     []provider.Payload
}

// Reply returns a Generator that always answers text.
func Reply(text string) *Generator { return &Generator{Steps: []Step{{Text: text}}} }

// Failing returns a Generator that always fails with kind.
func Failing(kind provider.FailureKind) *Generator {
	return &Generator{Steps: []Step{{Err: provider.Fail(kind, errors.New("scripted failure"))}}}
}

// Hanging returns a Generator that blocks until its context is done.
func Hanging() *Generator { return &Generator{Steps: []Step{{Block: true}}} }

func (g *Generator) Connect(ctx context.Context) error {
	g.mu.Lock()
	g.connects++
	delay, err := g.ConnectDelay, g.ConnectErr
	g.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
	return nil
}

func (g *Generator) Generate(ctx context.Context, p provider.Payload) (provider.Response, error) {
	g.mu.Lock()
	step := Step{Text: "ok"}
	if len(g.Steps) > 0 {
		i := g.calls
		if i >= len(g.Steps) {
			i = len(g.Steps) - 1
		}
		step = g.Steps[i]
	}
	g.calls++
	g.payloads = append(g.payloads, p)
	g.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return provider.Response{}, ctx.Err()
	}
	if step.Err != nil {
		return provider.Response{}, step.Err
	}
	return provider.Response{Text: step.Text}, nil
}

// Calls is the number of Generate invocations.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Connects is the number of Connect invocations.
func (g *Generator) Connects() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connects
}

// Closes is the number of Close invocations.
func (g *Generator) Closes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closes
}

// Payloads returns every payload received.
func (g *Generator) Payloads() []provider.Payload {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]provider.Payload(nil), g.payloads...)
}

// Source is a provider.Source backed by a collector.
type Source struct {
	Collector  device.Collector
	ConnectErr error
}

func (s *Source) Connect(context.Context) error { return s.ConnectErr }
func (s *Source) Close() error                  { return nil }
func (s *Source) Collect(ctx context.Context) (device.Snapshot, error) {
	return s.Collector.Collect(ctx)
}
