package metrics_collectors

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// MetricsRegistry holds the available host metric collectors by name.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// NewDefaultRegistry registers every built-in collector.
func NewDefaultRegistry(logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry()
	r.Register(&CPUMetricCollector{Logger: logger})
	r.Register(&MemoryMetricCollector{Logger: logger})
	r.Register(NewProcessMetricCollector(logger))
	r.Register(&GoroutineMetricCollector{Logger: logger})
	return r
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// Select returns the collectors with the given names, in name order.
func (r *MetricsRegistry) Select(names []string) ([]MetricCollector, error) {
	selected := make([]MetricCollector, 0, len(names))
	for _, name := range names {
		c, ok := r.collectors[name]
		if !ok {
			return nil, fmt.Errorf("unknown metric collector %q", name)
		}
		selected = append(selected, c)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Name() < selected[j].Name() })
	return selected, nil
}
