// Package metrics holds the Prometheus collectors of a remote play client.
//
// All Record methods accept a nil receiver so components can run without
// metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "remoteplay"

// Metrics contains every collector of the client
type Metrics struct {
	// Decode pipeline
	FramesSubmitted prometheus.Counter
	FramesDelivered prometheus.Counter
	FramesDropped   prometheus.Counter
	DecodeErrors    prometheus.Counter
	PullDuration    prometheus.Histogram

	// Audio bridge
	AudioSamples        prometheus.Counter
	AudioSamplesDropped prometheus.Counter
	AudioNegotiations   *prometheus.CounterVec

	// Feedback channel
	FeedbackStates  prometheus.Counter
	FeedbackHistory prometheus.Counter

	// Transport
	MessagesReceived *prometheus.CounterVec
	BytesReceived    prometheus.Counter
	ProtocolErrors   prometheus.Counter

	// Session
	SessionState *prometheus.GaugeVec
	Quits        *prometheus.CounterVec

	// Spectator mirror
	MirrorPeers prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_frames_submitted_total",
			Help:      "Compressed frames submitted to the decoder",
		}),

		FramesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_frames_delivered_total",
			Help:      "Decoded frames handed to the display",
		}),

		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_frames_dropped_total",
			Help:      "Decoded frames discarded before display",
		}),

		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decoder_errors_total",
			Help:      "Frames the decoder rejected",
		}),

		PullDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decoder_pull_duration_seconds",
			Help:      "Time spent draining the decoder for the latest frame",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		AudioSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_total",
			Help:      "PCM samples written to the audio device",
		}),

		AudioSamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_dropped_total",
			Help:      "PCM samples dropped without an open device",
		}),

		AudioNegotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_negotiations_total",
			Help:      "Audio format negotiations by result",
		}, []string{"result"}),

		FeedbackStates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_states_sent_total",
			Help:      "Feedback state records sent",
		}),

		FeedbackHistory: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_history_sent_total",
			Help:      "Feedback history records sent",
		}),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_messages_received_total",
			Help:      "Messages received from the console by type",
		}, []string{"type"}),

		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_bytes_received_total",
			Help:      "Bytes received from the console",
		}),

		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_protocol_errors_total",
			Help:      "Malformed messages dropped",
		}),

		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (1 for the active state)",
		}, []string{"state"}),

		Quits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_quits_total",
			Help:      "Session quits by reason",
		}, []string{"reason"}),

		MirrorPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirror_peers",
			Help:      "Connected spectator peers",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesSubmitted,
			m.FramesDelivered,
			m.FramesDropped,
			m.DecodeErrors,
			m.PullDuration,
			m.AudioSamples,
			m.AudioSamplesDropped,
			m.AudioNegotiations,
			m.FeedbackStates,
			m.FeedbackHistory,
			m.MessagesReceived,
			m.BytesReceived,
			m.ProtocolErrors,
			m.SessionState,
			m.Quits,
			m.MirrorPeers,
		)
	}

	return m
}

// RecordFrameSubmitted counts a frame handed to the decoder.
func (m *Metrics) RecordFrameSubmitted() {
	if m == nil {
		return
	}
	m.FramesSubmitted.Inc()
}

// RecordDecodeError counts a rejected frame.
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// RecordPull records one drain of the decoder: how long it took, whether a
// frame was delivered and how many older frames were discarded.
func (m *Metrics) RecordPull(d time.Duration, delivered bool, dropped int) {
	if m == nil {
		return
	}
	m.PullDuration.Observe(d.Seconds())
	if delivered {
		m.FramesDelivered.Inc()
	}
	if dropped > 0 {
		m.FramesDropped.Add(float64(dropped))
	}
}

// RecordFramesDropped counts frames discarded outside of a pull.
func (m *Metrics) RecordFramesDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesDropped.Add(float64(n))
}

// RecordAudio counts PCM samples written or dropped.
func (m *Metrics) RecordAudio(samples int, played bool) {
	if m == nil {
		return
	}
	if played {
		m.AudioSamples.Add(float64(samples))
	} else {
		m.AudioSamplesDropped.Add(float64(samples))
	}
}

// RecordNegotiation counts an audio format change.
func (m *Metrics) RecordNegotiation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.AudioNegotiations.WithLabelValues(result).Inc()
}

// RecordFeedbackState counts a sent state record.
func (m *Metrics) RecordFeedbackState() {
	if m == nil {
		return
	}
	m.FeedbackStates.Inc()
}

// RecordFeedbackHistory counts a sent history record.
func (m *Metrics) RecordFeedbackHistory() {
	if m == nil {
		return
	}
	m.FeedbackHistory.Inc()
}

// RecordMessage counts an inbound message.
func (m *Metrics) RecordMessage(msgType string, size int) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(msgType).Inc()
	m.BytesReceived.Add(float64(size))
}

// RecordProtocolError counts a dropped malformed message.
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

// SetSessionState marks state as the active one among all.
func (m *Metrics) SetSessionState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
}

// RecordQuit counts a session quit.
func (m *Metrics) RecordQuit(reason string) {
	if m == nil {
		return
	}
	m.Quits.WithLabelValues(reason).Inc()
}

// SetMirrorPeers sets the spectator count.
func (m *Metrics) SetMirrorPeers(n int) {
	if m == nil {
		return
	}
	m.MirrorPeers.Set(float64(n))
}
