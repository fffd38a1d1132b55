package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"insightd/internal/backend"
	"insightd/internal/config"
	"insightd/internal/device"
	"insightd/internal/dispatch"
	"insightd/internal/httpapi"
	"insightd/internal/orchestrator"
	"insightd/internal/provider"
	"insightd/internal/registry"
	"insightd/internal/snapcache"
)

// fakeProvider is an OpenAI-compatible chat endpoint with a scripted reply.
type fakeProvider struct {
	srv    *httptest.Server
	calls  atomic.Int32
	status int
	delay  time.Duration
	reply  string
}

func newFakeProvider(t *testing.T, status int, reply string) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{status: status, reply: reply}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"m"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		fp.calls.Add(1)
		if fp.delay > 0 {
			select {
			case <-time.After(fp.delay):
			case <-r.Context().Done():
				return
			}
		}
		if fp.status != http.StatusOK {
			http.Error(w, "unavailable", fp.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "m",
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": fp.reply}, "finish_reason": "stop"}},
		})
	})
	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) config(name string) config.ProviderConfig {
	return config.ProviderConfig{Name: name, Type: backend.TypeOpenAI, Endpoint: fp.srv.URL + "/v1", Model: "m"}
}

// writeSnapshot writes a snapshot JSON file and returns its path.
func writeSnapshot(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "snap.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return p
}

type harness struct {
	srv  *httptest.Server
	orch *orchestrator.Orchestrator
	pub  *orchestrator.MemoryPublisher
}

// newServer wires a full orchestrator behind the HTTP API. The primary
// collector reads snapPath; providers are registered in order and reserved
// like providers from a config file.
func newServer(t *testing.T, snapPath string, dcfg dispatch.Config, providers ...config.ProviderConfig) *harness {
	t.Helper()
	log := zerolog.Nop()
	reg := registry.New(log)
	for _, pc := range providers {
		desc, b, err := backend.Build(pc, log)
		if err != nil {
			t.Fatalf("build %s: %v", pc.Name, err)
		}
		if err := reg.Register(desc, b); err != nil {
			t.Fatalf("register %s: %v", pc.Name, err)
		}
	}
	primary, err := device.NewFileCollector(device.DefaultSource, snapPath)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	pub := &orchestrator.MemoryPublisher{}
	oc := orchestrator.ConfigFrom(config.Config{Providers: providers})
	oc.Publisher = pub
	oc.Logger = log
	oc.Build = func(pc config.ProviderConfig) (provider.Descriptor, provider.Backend, error) {
		return backend.Build(pc, log)
	}
	o := orchestrator.New(orchestrator.Deps{
		Registry:   reg,
		Cache:      snapcache.New(log),
		Dispatcher: dispatch.New(reg, dcfg, log),
		Collector:  primary,
	}, oc)
	if err := o.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(o.Cleanup)
	srv := httptest.NewServer(httpapi.NewMux(o))
	t.Cleanup(srv.Close)
	return &harness{srv: srv, orch: o, pub: pub}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpPostJSON(t *testing.T, url string, v any) (*http.Response, []byte) {
	t.Helper()
	body, _ := json.Marshal(v)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpDo(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	_ = resp.Body.Close()
	return resp
}
