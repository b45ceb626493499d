package metrics

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Probe is a point-in-time snapshot of one stream's buffer state.
type Probe struct {
	BufferedBytes  int
	BufferedChunks int
}

// ProbeFunc returns the current probe for a stream. It must be safe to call
// from the reporter's scheduling goroutine.
type ProbeFunc func() Probe

// Reporter samples registered stream probes on a cron schedule and publishes
// them as buffer gauges. Counters are updated inline by the streams; gauges
// for buffer occupancy only make sense sampled, which is what the reporter
// does.
type Reporter struct {
	registry *Registry
	cron     *cron.Cron

	mu     sync.Mutex
	probes map[string]ProbeFunc
}

// NewReporter creates a reporter that collects on the given cron schedule
// (for example "@every 15s").
func NewReporter(registry *Registry, schedule string) (*Reporter, error) {
	if registry == nil {
		registry = DefaultRegistry
	}

	r := &Reporter{
		registry: registry,
		cron:     cron.New(),
		probes:   make(map[string]ProbeFunc),
	}

	if _, err := r.cron.AddFunc(schedule, r.Collect); err != nil {
		return nil, fmt.Errorf("invalid reporter schedule %q: %w", schedule, err)
	}

	return r, nil
}

// Register adds a probe under the given stream name, replacing any previous
// probe with that name.
func (r *Reporter) Register(name string, probe ProbeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe
}

// Unregister removes the probe registered under name and clears its gauges.
func (r *Reporter) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.probes, name)
	r.registry.BufferedBytes.DeleteLabelValues(name)
	r.registry.BufferedChunks.DeleteLabelValues(name)
}

// Collect samples every registered probe immediately. The cron schedule
// calls this automatically once the reporter is started.
func (r *Reporter) Collect() {
	r.mu.Lock()
	probes := make(map[string]ProbeFunc, len(r.probes))
	for name, fn := range r.probes {
		probes[name] = fn
	}
	r.mu.Unlock()

	for name, fn := range probes {
		p := fn()
		r.registry.BufferedBytes.WithLabelValues(name).Set(float64(p.BufferedBytes))
		r.registry.BufferedChunks.WithLabelValues(name).Set(float64(p.BufferedChunks))
	}
}

// Start begins scheduled collection.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts scheduled collection. Probes registered with the reporter are
// kept, so Start may be called again.
func (r *Reporter) Stop() {
	r.cron.Stop()
}
