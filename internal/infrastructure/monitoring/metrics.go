package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Direction labels.
const (
	DirRX = "rx"
	DirTX = "tx"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ring metrics
	RingBytes         *prometheus.CounterVec
	RingMessages      *prometheus.CounterVec
	RingFill          *prometheus.GaugeVec
	Signals           *prometheus.CounterVec
	SendRejected      *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram
	LinkState         prometheus.Gauge

	// Operation metrics
	OpDuration *prometheus.HistogramVec

	// Mux metrics
	MuxFrames     *prometheus.CounterVec
	MuxReconnects *prometheus.CounterVec
	MuxDesyncs    prometheus.Counter

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	BytesRX       int64 `json:"bytes_rx"`
	BytesTX       int64 `json:"bytes_tx"`
	MessagesRX    int64 `json:"messages_rx"`
	MessagesTX    int64 `json:"messages_tx"`
	SendRejected  int64 `json:"send_rejected"`
	GarbageSignal int64 `json:"garbage_signals"`
	MuxFrames     int64 `json:"mux_frames"`
	MuxReconnects int64 `json:"mux_reconnects"`
}

// NewMetrics registers a metrics collector with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dspbridge_http_requests_total",
				Help: "Total number of status server requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dspbridge_http_request_duration_seconds",
				Help:    "Status server request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		// Ring metrics
		RingBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dspbridge_ring_bytes_total",
				Help: "Payload bytes moved through the ring",
			},
			[]string{"direction"},
		),
		RingMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dspbridge_ring_messages_total",
				Help: "Drains and sends that moved data",
			},
			[]string{"direction"},
		),
		RingFill: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dspbridge_ring_fill_bytes",
				Help: "Bytes queued in each ring page at last observation",
			},
			[]string{"direction"},
		),
		Signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dspbridge_signals_total",
				Help: "Notifications received by outcome",
			},
			[]string{"outcome"},
		),
		SendRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dspbridge_send_rejected_total",
				Help: "Sends refused by reason",
			},
			[]string{"reason"},
		),
		HandshakeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dspbridge_handshake_duration_seconds",
				Help:    "Time spent waiting for the peer to become ready",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
		),
		LinkState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dspbridge_link_state",
				Help: "Ring transport state (0 uninitialized, 1 handshaking, 2 ready)",
			},
		),

		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dspbridge_operation_duration_seconds",
				Help:    "Device operation duration in seconds",
				Buckets: []float64{.0001, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op", "status"},
		),

		// Mux metrics
		MuxFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serialmux_frames_total",
				Help: "Frames moved across the multiplexed port",
			},
			[]string{"port", "direction"},
		),
		MuxReconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serialmux_reconnects_total",
				Help: "Device reopen attempts per port",
			},
			[]string{"port"},
		),
		MuxDesyncs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "serialmux_desyncs_total",
				Help: "Input resynchronizations on the multiplexed port",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dspbridge_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records a status server request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDrain records bytes pulled from the remote page
func (m *Metrics) RecordDrain(n int) {
	if n == 0 {
		return
	}
	m.RingBytes.WithLabelValues(DirRX).Add(float64(n))
	m.RingMessages.WithLabelValues(DirRX).Inc()

	m.mu.Lock()
	m.snapshot.BytesRX += int64(n)
	m.snapshot.MessagesRX++
	m.mu.Unlock()
}

// RecordSend records bytes placed into the local page
func (m *Metrics) RecordSend(n int) {
	m.RingBytes.WithLabelValues(DirTX).Add(float64(n))
	m.RingMessages.WithLabelValues(DirTX).Inc()

	m.mu.Lock()
	m.snapshot.BytesTX += int64(n)
	m.snapshot.MessagesTX++
	m.mu.Unlock()
}

// RecordSendRejected records a refused send
func (m *Metrics) RecordSendRejected(reason string) {
	m.SendRejected.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.SendRejected++
	m.mu.Unlock()
}

// RecordSignal records a notification outcome
func (m *Metrics) RecordSignal(outcome string) {
	m.Signals.WithLabelValues(outcome).Inc()
	if outcome == "garbage" {
		m.mu.Lock()
		m.snapshot.GarbageSignal++
		m.mu.Unlock()
	}
}

// SetRingFill sets the observed fill level of one ring direction
func (m *Metrics) SetRingFill(direction string, n int) {
	m.RingFill.WithLabelValues(direction).Set(float64(n))
}

// SetLinkState sets the transport state gauge
func (m *Metrics) SetLinkState(state int) {
	m.LinkState.Set(float64(state))
}

// ObserveHandshake records how long the peer took to become ready
func (m *Metrics) ObserveHandshake(d time.Duration) {
	m.HandshakeDuration.Observe(d.Seconds())
}

// RecordMuxFrame records one frame for a port
func (m *Metrics) RecordMuxFrame(port, direction string) {
	m.MuxFrames.WithLabelValues(port, direction).Inc()

	m.mu.Lock()
	m.snapshot.MuxFrames++
	m.mu.Unlock()
}

// IncMuxReconnects increments the reopen counter for a port
func (m *Metrics) IncMuxReconnects(port string) {
	m.MuxReconnects.WithLabelValues(port).Inc()

	m.mu.Lock()
	m.snapshot.MuxReconnects++
	m.mu.Unlock()
}

// IncMuxDesyncs increments the resynchronization counter
func (m *Metrics) IncMuxDesyncs() {
	m.MuxDesyncs.Inc()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSince returns the time elapsed since the collector was created
func (m *Metrics) UptimeSince() time.Duration {
	return time.Since(m.startTime)
}
