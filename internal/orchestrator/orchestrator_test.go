package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightd/internal/config"
	"insightd/internal/device"
	"insightd/internal/dispatch"
	"insightd/internal/provider"
	"insightd/internal/provider/providertest"
	"insightd/internal/registry"
	"insightd/internal/snapcache"
)

var baseFields = map[string]any{
	"battery.level":        42.0,
	"battery.charging":     false,
	"power.source":         "battery",
	"memory.used_percent":  90.0,
	"storage.used_percent": 50.0,
	"cpu.usage_percent":    10.0,
	"network.connected":    true,
	"process.count":        120,
}

type fixture struct {
	o     *Orchestrator
	reg   *registry.Registry
	cache *snapcache.Cache
	pub   *MemoryPublisher
	calls *atomic.Int32
	fail  *atomic.Bool
}

func newFixture(t *testing.T, gens map[string]*providertest.Generator, order ...string) fixture {
	t.Helper()
	log := zerolog.Nop()
	reg := registry.New(log)
	for _, n := range order {
		require.NoError(t, reg.Register(provider.Descriptor{Name: n, Kind: provider.KindAIProvider, Capabilities: []string{provider.CapTextGeneration}}, gens[n]))
	}
	var calls atomic.Int32
	var fail atomic.Bool
	col := device.CollectorFunc(func(ctx context.Context) (device.Snapshot, error) {
		calls.Add(1)
		if fail.Load() {
			return device.Snapshot{}, errors.New("sensors unavailable")
		}
		return device.NewSnapshot("", time.Now(), baseFields), nil
	})
	cache := snapcache.New(log)
	pub := NewMemoryPublisher()
	o := New(Deps{
		Registry:   reg,
		Cache:      cache,
		Dispatcher: dispatch.New(reg, dispatch.Config{Timeout: time.Second}, log),
		Collector:  col,
	}, Config{Publisher: pub, Logger: log})
	require.NoError(t, o.Init(context.Background()))
	return fixture{o: o, reg: reg, cache: cache, pub: pub, calls: &calls, fail: &fail}
}

func TestBatteryAdviceUsesProviderWithBatteryFieldsOnly(t *testing.T) {
	g := providertest.Reply("Charge soon.")
	f := newFixture(t, map[string]*providertest.Generator{"openai": g}, "openai")

	res, err := f.o.GetBatteryAdvice(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.ProviderUsed)
	assert.Equal(t, "openai", *res.ProviderUsed)
	assert.Equal(t, "Charge soon.", res.Content)
	assert.False(t, res.Fallback)
	assert.Len(t, res.SnapshotExcerpt, 3)
	assert.Equal(t, "default", res.Source)

	p := g.Payloads()
	require.Len(t, p, 1)
	assert.Equal(t, provider.RequestBattery, p[0].Kind)
	assert.NotContains(t, p[0].Fields, "memory.used_percent")
}

func TestQueryRoutesToRelevantFields(t *testing.T) {
	g := providertest.Reply("You have 42%.")
	f := newFixture(t, map[string]*providertest.Generator{"a": g}, "a")

	res, err := f.o.QueryDeviceInfo(context.Background(), "How much battery do I have?", Options{})
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.SnapshotExcerpt["battery.level"])
	assert.NotContains(t, res.SnapshotExcerpt, "storage.used_percent")
	assert.NotContains(t, res.SnapshotExcerpt, "cpu.usage_percent")
	assert.Contains(t, g.Payloads()[0].Rendered, "How much battery do I have?")
}

func TestEmptyPromptIsRejected(t *testing.T) {
	g := providertest.Reply("x")
	f := newFixture(t, map[string]*providertest.Generator{"a": g}, "a")

	res, err := f.o.QueryDeviceInfo(context.Background(), "   ", Options{})
	assert.True(t, IsEmptyPrompt(err))
	assert.False(t, res.Success)
	assert.Equal(t, "EmptyPromptError", res.Error)
	assert.Equal(t, 0, g.Calls())
	assert.EqualValues(t, 0, f.calls.Load())
}

func TestFallbackWhenAllProvidersFail(t *testing.T) {
	gens := map[string]*providertest.Generator{
		"a": providertest.Failing(provider.FailureTransport),
		"b": providertest.Failing(provider.FailureAuth),
	}
	f := newFixture(t, gens, "a", "b")

	res, err := f.o.GetPerformanceTips(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Fallback)
	assert.Nil(t, res.ProviderUsed)
	assert.Contains(t, res.Content, "Memory usage is high")
	assert.Len(t, res.Attempts, 2)
	assert.Contains(t, f.pub.Names(), EventFallbackUsed)
}

func TestAlwaysAResultWithNoProviders(t *testing.T) {
	f := newFixture(t, nil)
	for _, prompt := range []string{"hello", "is my wifi ok", "battery?"} {
		res, err := f.o.QueryDeviceInfo(context.Background(), prompt, Options{})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.NotEmpty(t, strings.TrimSpace(res.Content))
	}
}

func TestSnapshotIsCachedAcrossOperations(t *testing.T) {
	f := newFixture(t, map[string]*providertest.Generator{"a": providertest.Reply("ok")}, "a")
	ctx := context.Background()

	_, _ = f.o.GetDeviceInsights(ctx, Options{})
	_, _ = f.o.GetPerformanceTips(ctx, Options{})
	_, _ = f.o.QueryDeviceInfo(ctx, "ram?", Options{})
	assert.EqualValues(t, 1, f.calls.Load())

	_, _ = f.o.GetDeviceInsights(ctx, Options{ForceRefresh: true})
	assert.EqualValues(t, 2, f.calls.Load())

	f.o.InvalidateCache("")
	_, _ = f.o.GetBatteryAdvice(ctx, Options{})
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestStaleSnapshotServedWhenRefreshFails(t *testing.T) {
	f := newFixture(t, map[string]*providertest.Generator{"a": providertest.Reply("ok")}, "a")
	ctx := context.Background()

	first, err := f.o.GetDeviceInsights(ctx, Options{})
	require.NoError(t, err)
	f.fail.Store(true)

	res, err := f.o.GetDeviceInsights(ctx, Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Stale)
	assert.Equal(t, first.CollectedAt, res.CollectedAt)
	assert.Contains(t, f.pub.Names(), EventStaleServed)
}

func TestCollectionFailureWithoutCache(t *testing.T) {
	f := newFixture(t, map[string]*providertest.Generator{"a": providertest.Reply("ok")}, "a")
	f.fail.Store(true)

	res, err := f.o.GetBatteryAdvice(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, "CollectionError: "))
	assert.Contains(t, f.pub.Names(), EventCollectionFailed)
}

func TestUnknownSourceIsHardError(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.o.GetDeviceInsights(context.Background(), Options{Source: "phone"})
	assert.True(t, registry.IsProviderNotFound(err))
}

func TestRegisteredDataSourceIsUsed(t *testing.T) {
	f := newFixture(t, map[string]*providertest.Generator{"a": providertest.Reply("ok")}, "a")
	src := &providertest.Source{Collector: device.CollectorFunc(func(context.Context) (device.Snapshot, error) {
		return device.NewSnapshot("phone", time.Now(), map[string]any{"battery.level": 5.0}), nil
	})}
	d, err := f.o.RegisterProvider(context.Background(), provider.Descriptor{Name: "phone", Kind: provider.KindDataSource, Capabilities: []string{provider.CapDeviceSnapshot}}, src, true)
	require.NoError(t, err)
	assert.Equal(t, provider.StateConnected, d.State)

	res, err := f.o.GetBatteryAdvice(context.Background(), Options{Source: "phone"})
	require.NoError(t, err)
	assert.Equal(t, "phone", res.Source)
	assert.Equal(t, 5.0, res.SnapshotExcerpt["battery.level"])

	_, err = f.o.RegisterProvider(context.Background(), provider.Descriptor{Name: "phone", Kind: provider.KindDataSource}, src, true)
	assert.True(t, registry.IsDuplicateProvider(err))

	require.NoError(t, f.o.DeregisterProvider("phone"))
	_, err = f.o.GetBatteryAdvice(context.Background(), Options{Source: "phone"})
	assert.True(t, registry.IsProviderNotFound(err))
}

func TestRegisterProviderRecordsConnectFailure(t *testing.T) {
	f := newFixture(t, nil)
	g := providertest.Reply("x")
	g.ConnectErr = errors.New("refused")
	d, err := f.o.RegisterProvider(context.Background(), provider.Descriptor{Name: "down", Kind: provider.KindAIProvider, Capabilities: []string{provider.CapTextGeneration}}, g, false)
	require.NoError(t, err)
	assert.Equal(t, provider.StateFailed, d.State)
	assert.Equal(t, "refused", d.LastError)
	assert.Contains(t, f.pub.Names(), EventProviderConnectFailed)
}

func TestRegisterFromConfig(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.o.RegisterFromConfig(context.Background(), config.ProviderConfig{Name: "x"}, false)
	assert.Error(t, err)

	f.o.cfg.Build = func(pc config.ProviderConfig) (provider.Descriptor, provider.Backend, error) {
		return provider.Descriptor{Name: pc.Name, Kind: provider.KindAIProvider, Capabilities: []string{provider.CapTextGeneration}}, providertest.Reply("built"), nil
	}
	d, err := f.o.RegisterFromConfig(context.Background(), config.ProviderConfig{Name: "x"}, false)
	require.NoError(t, err)
	assert.Equal(t, provider.StateConnected, d.State)

	res, err := f.o.QueryDeviceInfo(context.Background(), "hi", Options{PreferredProviders: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "built", res.Content)
}

func TestRegisterFromConfigGuardsCredentialsAndConfiguredNames(t *testing.T) {
	f := newFixture(t, map[string]*providertest.Generator{"groq": providertest.Reply("configured")}, "groq")
	var built atomic.Int32
	f.o.cfg.Build = func(pc config.ProviderConfig) (provider.Descriptor, provider.Backend, error) {
		built.Add(1)
		return provider.Descriptor{Name: pc.Name, Kind: provider.KindAIProvider, Capabilities: []string{provider.CapTextGeneration}}, providertest.Reply("runtime"), nil
	}
	f.o.cfg.CredentialEnvs = []string{"LOCAL_API_KEY"}
	f.o.cfg.ReservedProviders = []string{"groq"}

	_, err := f.o.RegisterFromConfig(context.Background(), config.ProviderConfig{Name: "x", APIKeyEnv: "HOME_SECRET"}, false)
	assert.True(t, IsCredentialNotAllowed(err), "err=%v", err)

	_, err = f.o.RegisterFromConfig(context.Background(), config.ProviderConfig{Name: " groq "}, false)
	assert.True(t, IsReservedProvider(err), "err=%v", err)
	assert.Equal(t, int32(0), built.Load())

	d, err := f.o.RegisterFromConfig(context.Background(), config.ProviderConfig{Name: "x", APIKeyEnv: "LOCAL_API_KEY"}, false)
	require.NoError(t, err)
	assert.Equal(t, "x", d.Name)

	res, err := f.o.QueryDeviceInfo(context.Background(), "hi", Options{PreferredProviders: []string{"groq"}})
	require.NoError(t, err)
	assert.Equal(t, "configured", res.Content)
}

func TestConfigFromReservesFileProviders(t *testing.T) {
	oc := ConfigFrom(config.Config{
		Providers:             []config.ProviderConfig{{Name: "groq"}, {Name: "phone "}},
		RuntimeCredentialEnvs: []string{"LOCAL_API_KEY"},
	})
	assert.True(t, oc.reserved("groq"))
	assert.True(t, oc.reserved("phone"))
	assert.False(t, oc.reserved("tablet"))
	assert.True(t, oc.credentialAllowed("LOCAL_API_KEY"))
	assert.False(t, oc.credentialAllowed("GROQ_API_KEY"))
}

func TestStatusAndCleanup(t *testing.T) {
	gens := map[string]*providertest.Generator{"a": providertest.Reply("ok")}
	f := newFixture(t, gens, "a")
	_, _ = f.o.GetDeviceInsights(context.Background(), Options{})

	st := f.o.GetStatus()
	assert.Equal(t, "ready", st.State)
	require.Len(t, st.Providers, 1)
	assert.Equal(t, "connected", st.Providers[0].State)
	assert.NotZero(t, st.Providers[0].LastUsed)
	require.Len(t, st.Cache, 1)
	assert.Equal(t, "default", st.Cache[0].Source)

	f.o.Cleanup()
	assert.False(t, f.o.Ready())
	st = f.o.GetStatus()
	assert.Equal(t, "closed", st.State)
	assert.Empty(t, st.Cache)
	assert.Equal(t, "disconnected", st.Providers[0].State)
	assert.Equal(t, 1, gens["a"].Closes())
	assert.Contains(t, f.pub.Names(), EventCleanup)
}

func TestFallbackAdviceThresholds(t *testing.T) {
	snap := func(fields map[string]any) device.Snapshot { return device.NewSnapshot("", time.Now(), fields) }

	low := FallbackAdvice(provider.RequestBattery, snap(map[string]any{"battery.level": 10.0, "battery.charging": true}))
	assert.Contains(t, low, "Battery is low (10%)")
	assert.Contains(t, low, "charging")

	mid := FallbackAdvice(provider.RequestBattery, snap(map[string]any{"battery.level": 35.0}))
	assert.Contains(t, mid, "Battery is at 35%")

	all := FallbackAdvice(provider.RequestInsights, snap(map[string]any{
		"storage.used_percent": 95.0,
		"cpu.usage_percent":    85.0,
		"network.connected":    false,
		"process.count":        500,
		"memory.used_percent":  75.0,
	}))
	for _, want := range []string{"Storage is almost full", "CPU usage is high", "offline", "500 processes", "Memory usage is elevated"} {
		assert.Contains(t, all, want)
	}

	empty := FallbackAdvice(provider.RequestQuery, snap(nil))
	assert.NotEmpty(t, empty)
}
