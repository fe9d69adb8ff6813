package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += "/" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[name] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[name] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}

func TestRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordFrameSubmitted()
	m.RecordPull(time.Millisecond, true, 2)
	m.RecordAudio(960, false)
	m.RecordNegotiation(false)
	m.RecordMessage("video_data", 1200)
	m.SetSessionState("streaming", []string{"handshaking", "streaming"})
	m.RecordQuit("stopped")
	m.SetMirrorPeers(3)

	values := gather(t, reg)
	assert.Equal(t, 1.0, values["remoteplay_decoder_frames_submitted_total"])
	assert.Equal(t, 1.0, values["remoteplay_decoder_frames_delivered_total"])
	assert.Equal(t, 2.0, values["remoteplay_decoder_frames_dropped_total"])
	assert.Equal(t, 1.0, values["remoteplay_decoder_pull_duration_seconds"])
	assert.Equal(t, 1.0, values["remoteplay_session_state/streaming"])
	assert.Equal(t, 0.0, values["remoteplay_session_state/handshaking"])
	assert.Equal(t, 3.0, values["remoteplay_mirror_peers"])
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordFrameSubmitted()
		m.RecordDecodeError()
		m.RecordPull(time.Millisecond, false, 0)
		m.RecordFramesDropped(1)
		m.RecordAudio(1, true)
		m.RecordNegotiation(true)
		m.RecordFeedbackState()
		m.RecordFeedbackHistory()
		m.RecordMessage("quit", 4)
		m.RecordProtocolError()
		m.SetSessionState("failed", nil)
		m.RecordQuit("stopped")
		m.SetMirrorPeers(0)
	})
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	require.NotNil(t, m)
	m.RecordFeedbackState()
}
