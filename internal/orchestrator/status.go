package orchestrator

import (
	"insightd/pkg/types"
)

// GetStatus builds the status response for /status.
func (o *Orchestrator) GetStatus() types.StatusResponse {
	o.mu.RLock()
	state, started := o.state, o.startTime
	o.mu.RUnlock()

	now := o.now()
	resp := types.StatusResponse{
		Providers:      o.Providers(),
		State:          string(state),
		UptimeSeconds:  int64(now.Sub(started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	entries := o.cache.Entries()
	resp.Cache = make([]types.CacheEntryStatus, 0, len(entries))
	for _, e := range entries {
		resp.Cache = append(resp.Cache, types.CacheEntryStatus{
			Source: e.Source,
			AgeMs:  e.Age.Milliseconds(),
			Stale:  e.Stale,
		})
	}
	return resp
}
