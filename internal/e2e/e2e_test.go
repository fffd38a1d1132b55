package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"insightd/internal/dispatch"
	"insightd/internal/orchestrator"
	"insightd/pkg/types"
)

const phoneSnapshot = `{"battery":{"level":18,"charging":false,"health":"good"},"memory":{"used_percent":91},"storage":{"free_gb":3.5}}`

func decodeResult(t *testing.T, b []byte) types.InsightResult {
	t.Helper()
	var res types.InsightResult
	if err := json.Unmarshal(b, &res); err != nil {
		t.Fatalf("decode result %q: %v", string(b), err)
	}
	return res
}

// TestE2E_FailoverToSecondProvider verifies a failing first provider is
// skipped and the second one answers, with both attempts reported.
func TestE2E_FailoverToSecondProvider(t *testing.T) {
	down := newFakeProvider(t, http.StatusServiceUnavailable, "")
	up := newFakeProvider(t, http.StatusOK, "Charge soon; battery is at 18%.")
	h := newServer(t, writeSnapshot(t, phoneSnapshot), dispatch.Config{Timeout: 2 * time.Second},
		down.config("primary"), up.config("secondary"))

	resp, body := httpGet(t, h.srv.URL+"/battery")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	res := decodeResult(t, body)
	if !res.Success || res.ProviderUsed == nil || *res.ProviderUsed != "secondary" || res.Fallback {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Outcome != "TransportError" || res.Attempts[1].Outcome != "ok" {
		t.Fatalf("attempts=%+v", res.Attempts)
	}
	if _, ok := res.SnapshotExcerpt["battery.level"]; !ok {
		t.Fatalf("excerpt missing battery.level: %v", res.SnapshotExcerpt)
	}
	if _, ok := res.SnapshotExcerpt["memory.used_percent"]; ok {
		t.Fatalf("battery advice should not carry memory fields: %v", res.SnapshotExcerpt)
	}
}

// TestE2E_PreferredProvidersOverrideOrder verifies the providers parameter
// changes who is tried first.
func TestE2E_PreferredProvidersOverrideOrder(t *testing.T) {
	a := newFakeProvider(t, http.StatusOK, "from a")
	b := newFakeProvider(t, http.StatusOK, "from b")
	h := newServer(t, writeSnapshot(t, phoneSnapshot), dispatch.Config{}, a.config("a"), b.config("b"))

	_, body := httpGet(t, h.srv.URL+"/insights?providers=b,a")
	res := decodeResult(t, body)
	if res.ProviderUsed == nil || *res.ProviderUsed != "b" || res.Content != "from b" {
		t.Fatalf("unexpected result %+v", res)
	}
	if a.calls.Load() != 0 {
		t.Fatalf("provider a should not be called, got %d", a.calls.Load())
	}
}

// TestE2E_AllProvidersDownServesFallback verifies static advice when every
// provider fails, including one that hangs past the timeout.
func TestE2E_AllProvidersDownServesFallback(t *testing.T) {
	slow := newFakeProvider(t, http.StatusOK, "too late")
	slow.delay = time.Second
	down := newFakeProvider(t, http.StatusInternalServerError, "")
	h := newServer(t, writeSnapshot(t, phoneSnapshot), dispatch.Config{Timeout: 100 * time.Millisecond},
		slow.config("slow"), down.config("down"))

	_, body := httpGet(t, h.srv.URL+"/performance")
	res := decodeResult(t, body)
	if !res.Success || !res.Fallback || res.ProviderUsed != nil || res.Content == "" {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Outcome != "Timeout" {
		t.Fatalf("attempts=%+v", res.Attempts)
	}
	if !containsEvent(h.pub, orchestrator.EventFallbackUsed) {
		t.Fatalf("fallback event not published: %v", h.pub.Names())
	}
}

// TestE2E_QueryRoutesFields verifies a free-text question only ships the
// matching snapshot fields.
func TestE2E_QueryRoutesFields(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, "You have 3.5 GB free.")
	h := newServer(t, writeSnapshot(t, phoneSnapshot), dispatch.Config{}, p.config("p"))

	resp, body := httpPostJSON(t, h.srv.URL+"/query", types.QueryRequest{Prompt: "How much storage is left?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	res := decodeResult(t, body)
	if _, ok := res.SnapshotExcerpt["storage.free_gb"]; !ok || len(res.SnapshotExcerpt) != 1 {
		t.Fatalf("excerpt=%v", res.SnapshotExcerpt)
	}

	resp, body = httpPostJSON(t, h.srv.URL+"/query", types.QueryRequest{Prompt: "  "})
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "EmptyPromptError") {
		t.Fatalf("empty prompt status=%d body=%s", resp.StatusCode, body)
	}
}

// TestE2E_CacheAndInvalidate verifies snapshots are reused inside the
// freshness window and re-read after invalidation.
func TestE2E_CacheAndInvalidate(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, "ok")
	snap := writeSnapshot(t, phoneSnapshot)
	h := newServer(t, snap, dispatch.Config{}, p.config("p"))

	_, body := httpGet(t, h.srv.URL+"/battery?freshness_ms=60000")
	first := decodeResult(t, body)
	if err := os.WriteFile(snap, []byte(`{"battery":{"level":77}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, body = httpGet(t, h.srv.URL+"/battery?freshness_ms=60000")
	cached := decodeResult(t, body)
	if cached.SnapshotExcerpt["battery.level"] != first.SnapshotExcerpt["battery.level"] {
		t.Fatalf("expected cached snapshot, got %v", cached.SnapshotExcerpt)
	}

	if resp := httpDo(t, http.MethodPost, h.srv.URL+"/cache/invalidate"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("invalidate status=%d", resp.StatusCode)
	}
	_, body = httpGet(t, h.srv.URL+"/battery?freshness_ms=60000")
	fresh := decodeResult(t, body)
	if fresh.SnapshotExcerpt["battery.level"] != float64(77) {
		t.Fatalf("expected new snapshot, got %v", fresh.SnapshotExcerpt)
	}
}

// TestE2E_RegisterDataSourceOverHTTP registers a file data source, reads
// insights from it and removes it again.
func TestE2E_RegisterDataSourceOverHTTP(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, "Tablet looks healthy.")
	h := newServer(t, writeSnapshot(t, phoneSnapshot), dispatch.Config{}, p.config("p"))
	tablet := writeSnapshot(t, `{"battery":{"level":99}}`)

	resp, body := httpPostJSON(t, h.srv.URL+"/providers", types.RegisterProviderRequest{Name: "tablet", Type: "file", Endpoint: tablet})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", resp.StatusCode, body)
	}
	var ps types.ProviderStatus
	if err := json.Unmarshal(body, &ps); err != nil || ps.Kind != "data_source" || ps.State != "connected" {
		t.Fatalf("provider status=%s", body)
	}

	resp, body = httpPostJSON(t, h.srv.URL+"/providers", types.RegisterProviderRequest{Name: "tablet", Type: "file", Endpoint: tablet, Strict: true})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("strict duplicate status=%d body=%s", resp.StatusCode, body)
	}

	_, body = httpGet(t, h.srv.URL+"/battery?source=tablet")
	res := decodeResult(t, body)
	if res.Source != "tablet" || res.SnapshotExcerpt["battery.level"] != float64(99) {
		t.Fatalf("unexpected result %+v", res)
	}

	if resp := httpDo(t, http.MethodDelete, h.srv.URL+"/providers/tablet"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("deregister status=%d", resp.StatusCode)
	}
	resp, _ = httpGet(t, h.srv.URL+"/battery?source=tablet")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for removed source, got %d", resp.StatusCode)
	}
}

// TestE2E_RegisterRejectsUnlistedCredential verifies a runtime registration
// cannot point a host credential at an endpoint of its choosing, nor replace
// a configured provider.
func TestE2E_RegisterRejectsUnlistedCredential(t *testing.T) {
	t.Setenv("INSIGHTD_TEST_HOST_SECRET", "s3cr3t-value")
	var hits atomic.Int32
	var gotAuth atomic.Value
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer collector.Close()

	p := newFakeProvider(t, http.StatusOK, "fine")
	h := newServer(t, writeSnapshot(t, phoneSnapshot), dispatch.Config{}, p.config("p"))

	resp, body := httpPostJSON(t, h.srv.URL+"/providers", types.RegisterProviderRequest{
		Name: "relay", Type: "openai", Endpoint: collector.URL + "/v1", APIKeyEnv: "INSIGHTD_TEST_HOST_SECRET",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("register status=%d body=%s", resp.StatusCode, body)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("endpoint was contacted %d times, auth=%v", n, gotAuth.Load())
	}
	if _, body := httpGet(t, h.srv.URL+"/providers"); strings.Contains(string(body), "relay") {
		t.Fatalf("rejected provider is registered: %s", body)
	}

	resp, body = httpPostJSON(t, h.srv.URL+"/providers", types.RegisterProviderRequest{
		Name: "p", Type: "openai", Endpoint: collector.URL + "/v1", SkipProbe: true,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replace configured status=%d body=%s", resp.StatusCode, body)
	}
	_, body = httpPostJSON(t, h.srv.URL+"/query", types.QueryRequest{Prompt: "battery?"})
	if res := decodeResult(t, body); res.Content != "fine" {
		t.Fatalf("configured provider was replaced: %+v", res)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("endpoint was contacted %d times", n)
	}
}

// TestE2E_CollectionFailureIs503 verifies a missing primary snapshot with no
// cache yields 503 and a CollectionError result.
func TestE2E_CollectionFailureIs503(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, "unused")
	snap := writeSnapshot(t, phoneSnapshot)
	h := newServer(t, snap, dispatch.Config{}, p.config("p"))
	if err := os.Remove(snap); err != nil {
		t.Fatal(err)
	}
	resp, body := httpGet(t, h.srv.URL+"/insights")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if res := decodeResult(t, body); !strings.HasPrefix(res.Error, "CollectionError") {
		t.Fatalf("error=%q", res.Error)
	}
	if p.calls.Load() != 0 {
		t.Fatalf("provider should not be called without a snapshot")
	}
}

// TestE2E_StatusAndReadiness verifies /status reports providers and cache
// entries and /readyz reports ready after init.
func TestE2E_StatusAndReadiness(t *testing.T) {
	p := newFakeProvider(t, http.StatusOK, "ok")
	h := newServer(t, writeSnapshot(t, phoneSnapshot), dispatch.Config{}, p.config("p"))
	httpGet(t, h.srv.URL+"/insights")

	resp, body := httpGet(t, h.srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "ready" || len(st.Providers) != 1 || st.Providers[0].LastUsed == 0 || len(st.Cache) != 1 {
		t.Fatalf("unexpected status %s", body)
	}
	if resp, _ := httpGet(t, h.srv.URL+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz=%d", resp.StatusCode)
	}
}

func containsEvent(p *orchestrator.MemoryPublisher, name string) bool {
	for _, n := range p.Names() {
		if n == name {
			return true
		}
	}
	return false
}
