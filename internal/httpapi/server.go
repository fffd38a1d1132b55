package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insightd/internal/backend"
	"insightd/internal/config"
	"insightd/internal/orchestrator"
	"insightd/internal/provider"
	"insightd/pkg/types"
)

// Service is the orchestration surface served over HTTP.
type Service interface {
	GetDeviceInsights(ctx context.Context, opts orchestrator.Options) (types.InsightResult, error)
	GetBatteryAdvice(ctx context.Context, opts orchestrator.Options) (types.InsightResult, error)
	GetPerformanceTips(ctx context.Context, opts orchestrator.Options) (types.InsightResult, error)
	QueryDeviceInfo(ctx context.Context, prompt string, opts orchestrator.Options) (types.InsightResult, error)
	GetStatus() types.StatusResponse
	Providers() []types.ProviderStatus
	RegisterFromConfig(ctx context.Context, pc config.ProviderConfig, strict bool) (provider.Descriptor, error)
	DeregisterProvider(name string) error
	InvalidateCache(source string)
	Ready() bool
}

type insightFunc func(ctx context.Context, opts orchestrator.Options) (types.InsightResult, error)

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if c := corsMiddleware(); c != nil {
		r.Use(c)
	}
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/insights", insightHandler("insights", svc.GetDeviceInsights))
	r.Get("/battery", insightHandler("battery", svc.GetBatteryAdvice))
	r.Get("/performance", insightHandler("performance", svc.GetPerformanceTips))
	r.Post("/query", queryHandler(svc))

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.GetStatus())
	})
	r.Get("/providers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": svc.Providers()})
	})
	r.Post("/providers", registerHandler(svc))
	r.Delete("/providers/{name}", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := svc.DeregisterProvider(chi.URLParam(r, "name")); err != nil {
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, "deregister", status, start, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		logEnd(r, "deregister", http.StatusNoContent, start, nil)
	})
	r.Post("/cache/invalidate", func(w http.ResponseWriter, r *http.Request) {
		svc.InvalidateCache(strings.TrimSpace(r.URL.Query().Get("source")))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("initializing"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func insightHandler(op string, fn insightFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		opts, err := optionsFromQuery(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			logEnd(r, op, http.StatusBadRequest, start, err)
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		res, err := fn(ctx, opts)
		writeResult(w, r, op, start, res, err)
	}
}

func queryHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if !isJSON(r) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, settings.maxBody)
		var req types.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			logEnd(r, "query", http.StatusBadRequest, start, err)
			return
		}
		opts, err := optionsFromQueryRequest(req)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			logEnd(r, "query", http.StatusBadRequest, start, err)
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		res, err := svc.QueryDeviceInfo(ctx, req.Prompt, opts)
		writeResult(w, r, "query", start, res, err)
	}
}

func registerHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if !isJSON(r) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, settings.maxBody)
		var req types.RegisterProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			logEnd(r, "register", http.StatusBadRequest, start, err)
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Type) == "" {
			writeJSONError(w, http.StatusBadRequest, "name and type are required")
			return
		}
		ctx, cancel := requestContext(r)
		defer cancel()
		desc, err := svc.RegisterFromConfig(ctx, providerConfigFrom(req), req.Strict)
		if err != nil {
			status := statusFor(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, "register", status, start, err)
			return
		}
		writeJSON(w, http.StatusCreated, orchestrator.ProviderStatus(desc))
		logEnd(r, "register", http.StatusCreated, start, nil)
	}
}

// providerConfigFrom maps the request onto a provider config. For the llama
// and file types the endpoint is the path.
func providerConfigFrom(req types.RegisterProviderRequest) config.ProviderConfig {
	pc := config.ProviderConfig{
		Name:         strings.TrimSpace(req.Name),
		Kind:         req.Kind,
		Type:         req.Type,
		Endpoint:     req.Endpoint,
		Model:        req.Model,
		APIKeyEnv:    req.APIKeyEnv,
		Capabilities: req.Capabilities,
		SkipProbe:    req.SkipProbe,
	}
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case backend.TypeLlama, backend.TypeFile:
		pc.Path = strings.TrimPrefix(req.Endpoint, "file://")
		pc.Endpoint = ""
	}
	return pc
}

// writeResult writes an insight result. A result that carries a collection
// failure is served as 503 with the result body.
func writeResult(w http.ResponseWriter, r *http.Request, op string, start time.Time, res types.InsightResult, err error) {
	if err != nil {
		// If context was canceled (client disconnect or shutdown), just return.
		if r.Context().Err() != nil || baseCtx.Err() != nil {
			return
		}
		if orchestrator.IsEmptyPrompt(err) {
			writeJSON(w, http.StatusBadRequest, res)
			logEnd(r, op, http.StatusBadRequest, start, err)
			return
		}
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logEnd(r, op, status, start, err)
		return
	}
	status := http.StatusOK
	if !res.Success && strings.HasPrefix(res.Error, orchestrator.ErrNameCollection) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
	logEnd(r, op, status, start, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct != "" && strings.HasPrefix(strings.ToLower(ct), "application/json")
}
