package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"insightd/internal/orchestrator"
	"insightd/pkg/types"
)

// splitCSV splits a comma separated list, dropping blanks.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// optionsFromQuery reads providers, freshness_ms, source and refresh.
func optionsFromQuery(r *http.Request) (orchestrator.Options, error) {
	q := r.URL.Query()
	opts := orchestrator.Options{
		PreferredProviders: splitCSV(q.Get("providers")),
		Source:             strings.TrimSpace(q.Get("source")),
	}
	if v := q.Get("freshness_ms"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid freshness_ms %q", v)
		}
		if opts.Freshness, err = freshness(n); err != nil {
			return opts, err
		}
	}
	if v := q.Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid refresh %q", v)
		}
		opts.ForceRefresh = b
	}
	return opts, nil
}

func optionsFromQueryRequest(req types.QueryRequest) (orchestrator.Options, error) {
	f, err := freshness(req.FreshnessMs)
	if err != nil {
		return orchestrator.Options{}, err
	}
	return orchestrator.Options{
		PreferredProviders: req.PreferredProviders,
		Freshness:          f,
		Source:             strings.TrimSpace(req.Source),
		ForceRefresh:       req.Refresh,
	}, nil
}

const maxFreshnessMs = math.MaxInt64 / int64(time.Millisecond)

// freshness converts milliseconds to a window, rejecting values that are
// negative or do not fit a time.Duration.
func freshness(ms int64) (time.Duration, error) {
	if ms < 0 || ms > maxFreshnessMs {
		return 0, fmt.Errorf("invalid freshness_ms %d: must be between 0 and %d", ms, maxFreshnessMs)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
