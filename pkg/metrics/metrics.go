// Package metrics provides Prometheus instrumentation for chunkflow streams.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Side labels distinguish the readable and writable halves of a pipeline in
// shared metric families.
const (
	SideReadable = "readable"
	SideWritable = "writable"
)

// Registry holds all metric instances for chunkflow streams. Streams update
// it when configured with a registry and a name; a nil registry disables
// collection.
type Registry struct {
	ChunksPushed       *prometheus.CounterVec
	ChunksDelivered    *prometheus.CounterVec
	BytesPushed        *prometheus.CounterVec
	BytesDelivered     *prometheus.CounterVec
	BackpressureEvents *prometheus.CounterVec
	DrainEvents        *prometheus.CounterVec
	StreamErrors       *prometheus.CounterVec
	BufferedBytes      *prometheus.GaugeVec
	BufferedChunks     *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by chunkflow streams.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus
// registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ChunksPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkflow",
				Subsystem: "stream",
				Name:      "chunks_pushed_total",
				Help:      "Total number of chunks pushed into readable buffers",
			},
			[]string{"stream"},
		),

		ChunksDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkflow",
				Subsystem: "stream",
				Name:      "chunks_delivered_total",
				Help:      "Total number of chunks delivered to consumers or sinks",
			},
			[]string{"stream"},
		),

		BytesPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkflow",
				Subsystem: "stream",
				Name:      "bytes_pushed_total",
				Help:      "Total bytes pushed into readable buffers",
			},
			[]string{"stream"},
		),

		BytesDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkflow",
				Subsystem: "stream",
				Name:      "bytes_delivered_total",
				Help:      "Total bytes delivered to consumers or sinks",
			},
			[]string{"stream"},
		),

		BackpressureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkflow",
				Subsystem: "backpressure",
				Name:      "events_total",
				Help:      "Total number of high-water-mark crossings signaling backpressure",
			},
			[]string{"side", "stream"},
		),

		DrainEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkflow",
				Subsystem: "backpressure",
				Name:      "drain_events_total",
				Help:      "Total number of drain notifications",
			},
			[]string{"side", "stream"},
		),

		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkflow",
				Subsystem: "stream",
				Name:      "errors_total",
				Help:      "Total number of terminal stream errors",
			},
			[]string{"side", "stream"},
		),

		BufferedBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chunkflow",
				Subsystem: "stream",
				Name:      "buffered_bytes",
				Help:      "Bytes currently buffered, sampled by the reporter",
			},
			[]string{"stream"},
		),

		BufferedChunks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chunkflow",
				Subsystem: "stream",
				Name:      "buffered_chunks",
				Help:      "Chunks currently buffered, sampled by the reporter",
			},
			[]string{"stream"},
		),
	}
}
