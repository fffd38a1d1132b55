package backend

import (
	"context"
	"sync"

	"insightd/internal/device"
	"insightd/internal/provider"
)

// CollectorSource adapts a device.Collector into a provider.Source. Connect
// performs one collection so an unusable source fails at registration.
type CollectorSource struct {
	collector device.Collector
	probe     bool

	mu        sync.Mutex
	connected bool
}

var _ provider.Source = (*CollectorSource)(nil)

// NewCollectorSource wraps c. When probe is set, Connect collects once.
func NewCollectorSource(c device.Collector, probe bool) *CollectorSource {
	return &CollectorSource{collector: c, probe: probe}
}

func (s *CollectorSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	if s.probe {
		if _, err := s.collector.Collect(ctx); err != nil {
			return err
		}
	}
	s.connected = true
	return nil
}

func (s *CollectorSource) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *CollectorSource) Collect(ctx context.Context) (device.Snapshot, error) {
	return s.collector.Collect(ctx)
}

// Collector exposes the wrapped collector.
func (s *CollectorSource) Collector() device.Collector { return s.collector }
