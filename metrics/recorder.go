// Package metrics exports sensor stream session metrics to Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cyberinferno/sensorstream/tcpserver"
)

// Recorder implements tcpserver.Recorder with Prometheus collectors.
type Recorder struct {
	sessions  prometheus.Counter
	lines     prometheus.Counter
	bytes     prometheus.Counter
	endings   *prometheus.CounterVec
	connected prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with registerer.
//
// Returns:
//   - The Recorder, or an error if a collector is already registered
func NewRecorder(registerer prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorstream_sessions_total",
			Help: "Total number of accepted sensor connections.",
		}),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorstream_lines_received_total",
			Help: "Total number of records appended to the sensor buffer.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorstream_bytes_received_total",
			Help: "Total number of record bytes received, terminators included.",
		}),
		endings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorstream_session_ends_total",
			Help: "Total number of finished sessions by cause.",
		}, []string{"cause"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorstream_connection_active",
			Help: "1 while a sensor client is connected.",
		}),
	}

	for _, c := range []prometheus.Collector{r.sessions, r.lines, r.bytes, r.endings, r.connected} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register sensorstream collector: %w", err)
		}
	}

	return r, nil
}

// SessionStarted implements tcpserver.Recorder.
func (r *Recorder) SessionStarted() {
	r.sessions.Inc()
	r.connected.Set(1)
}

// LineReceived implements tcpserver.Recorder.
func (r *Recorder) LineReceived(bytes int) {
	r.lines.Inc()
	r.bytes.Add(float64(bytes))
}

// SessionEnded implements tcpserver.Recorder.
func (r *Recorder) SessionEnded(cause tcpserver.EndCause) {
	r.endings.WithLabelValues(cause.String()).Inc()
	r.connected.Set(0)
}
