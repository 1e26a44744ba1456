package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"arcast/internal/core/domain"
)

// PrometheusCollector implements the session pipeline's metrics sink plus
// the transport's RTCP feedback counters.
type PrometheusCollector struct {
	sessionState      prometheus.Gauge
	connectedClients  prometheus.Gauge
	negotiationsTotal prometheus.Counter
	sessionFailures   *prometheus.CounterVec

	videoFramesDropped     prometheus.Counter
	trackingSamplesDropped prometheus.Counter
	metadataDropped        prometheus.Counter
	candidatesDropped      prometheus.Counter

	videoRate    prometheus.Gauge
	trackingRate prometheus.Gauge

	keyframeRequests prometheus.Counter
	receiverLoss     prometheus.Histogram
	receiverJitter   prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arcast_session_state",
			Help: "Current session state (0=idle, 1=negotiating, 2=active, 3=closing)",
		}),

		connectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arcast_signaling_clients",
			Help: "Number of connected signaling clients",
		}),

		negotiationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arcast_negotiations_total",
			Help: "Total number of offer negotiations attempted",
		}),

		sessionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arcast_session_failures_total",
			Help: "Session and source failures by reason",
		}, []string{"reason"}),

		videoFramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arcast_video_frames_dropped_total",
			Help: "Camera frames dropped under backpressure or write failure",
		}),

		trackingSamplesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arcast_tracking_samples_dropped_total",
			Help: "Tracking samples dropped before reaching the metadata channel",
		}),

		metadataDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arcast_metadata_messages_dropped_total",
			Help: "Metadata channel sends dropped on saturation or failure",
		}),

		candidatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arcast_remote_candidates_dropped_total",
			Help: "Remote ICE candidates dropped for lack of a peer connection",
		}),

		videoRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arcast_video_frame_rate",
			Help: "Measured camera frame arrival rate in frames per second",
		}),

		trackingRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arcast_tracking_sample_rate",
			Help: "Measured tracking sample rate in samples per second",
		}),

		keyframeRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arcast_keyframe_requests_total",
			Help: "Keyframe requests triggered by client PLI feedback",
		}),

		receiverLoss: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcast_receiver_fraction_lost",
			Help:    "Fraction of packets lost reported by receiver reports",
			Buckets: []float64{0, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
		}),

		receiverJitter: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcast_receiver_jitter",
			Help:    "Interarrival jitter reported by receiver reports, in RTP clock ticks",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
	}
}

func (p *PrometheusCollector) RecordSessionState(state domain.SessionState) {
	p.sessionState.Set(float64(state))
}

func (p *PrometheusCollector) RecordNegotiation() {
	p.negotiationsTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionFailure(reason string) {
	p.sessionFailures.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordVideoFrameDropped() {
	p.videoFramesDropped.Inc()
}

func (p *PrometheusCollector) RecordTrackingSampleDropped() {
	p.trackingSamplesDropped.Inc()
}

func (p *PrometheusCollector) RecordMetadataMessageDropped() {
	p.metadataDropped.Inc()
}

func (p *PrometheusCollector) RecordCandidateDropped() {
	p.candidatesDropped.Inc()
}

func (p *PrometheusCollector) RecordConnectedClients(n int) {
	p.connectedClients.Set(float64(n))
}

func (p *PrometheusCollector) RecordVideoRate(rate float64) {
	p.videoRate.Set(rate)
}

func (p *PrometheusCollector) RecordTrackingRate(rate float64) {
	p.trackingRate.Set(rate)
}

func (p *PrometheusCollector) RecordKeyframeRequest() {
	p.keyframeRequests.Inc()
}

func (p *PrometheusCollector) RecordReceiverReport(fractionLost float64, jitter uint32) {
	p.receiverLoss.Observe(fractionLost)
	p.receiverJitter.Observe(float64(jitter))
}
