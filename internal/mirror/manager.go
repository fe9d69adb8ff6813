// Package mirror shows the console's video stream to WebRTC spectators.
// Spectators only watch; input stays with the local client.
package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"github.com/zalo/remoteplay/internal/metrics"
	"github.com/zalo/remoteplay/internal/protocol"
)

// ErrFull is returned when the spectator limit is reached
var ErrFull = errors.New("mirror is full")

// Settings configures the mirror
type Settings struct {
	ICEServers     []string
	TURNUsername   string
	TURNCredential string
	// MaxPeers limits spectators; zero means 4.
	MaxPeers int
	// Codec and FPS describe the mirrored stream.
	Codec protocol.Codec
	FPS   uint16
}

// Manager manages spectator peer connections
type Manager struct {
	mu       sync.RWMutex
	api      *webrtc.API
	config   webrtc.Configuration
	codec    webrtc.RTPCodecCapability
	duration time.Duration
	maxPeers int
	peers    map[string]*Peer

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewManager creates a new mirror manager
func NewManager(settings Settings, logger *zap.Logger, m *metrics.Metrics) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	servers := make([]webrtc.ICEServer, 0, len(settings.ICEServers))
	for _, url := range settings.ICEServers {
		server := webrtc.ICEServer{URLs: []string{url}}
		if settings.TURNUsername != "" && strings.HasPrefix(url, "turn") {
			server.Username = settings.TURNUsername
			server.Credential = settings.TURNCredential
		}
		servers = append(servers, server)
	}

	codec := webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeH264,
		ClockRate:   90000,
		SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
	}
	if settings.Codec == protocol.CodecH265 {
		codec = webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeH265,
			ClockRate: 90000,
		}
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: codec,
		PayloadType:        96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", codec.MimeType, err)
	}

	maxPeers := settings.MaxPeers
	if maxPeers <= 0 {
		maxPeers = 4
	}
	fps := settings.FPS
	if fps == 0 {
		fps = 60
	}

	return &Manager{
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(me)),
		config:   webrtc.Configuration{ICEServers: servers},
		codec:    codec,
		duration: time.Second / time.Duration(fps),
		maxPeers: maxPeers,
		peers:    make(map[string]*Peer),
		logger:   logger.Named("mirror"),
		metrics:  m,
	}, nil
}

// CreatePeer creates a spectator peer connection with the video track attached.
func (m *Manager) CreatePeer() (*Peer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.peers) >= m.maxPeers {
		return nil, ErrFull
	}

	pc, err := m.api.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	peer := &Peer{
		ID: uuid.New().String(),
		pc: pc,
	}
	if err := peer.setupTrack(m.codec); err != nil {
		pc.Close()
		return nil, err
	}

	logger := m.logger.With(zap.String("peer", peer.ID))
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("Peer connection state", zap.Stringer("state", state))
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			m.RemovePeer(peer.ID)
		}
	})

	m.peers[peer.ID] = peer
	m.metrics.SetMirrorPeers(len(m.peers))
	logger.Info("Spectator joined", zap.Int("peers", len(m.peers)))
	return peer, nil
}

// Peer returns an existing peer
func (m *Manager) Peer(id string) *Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.peers[id]
}

// Len returns the number of spectators.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.peers)
}

// RemovePeer closes and removes a peer
func (m *Manager) RemovePeer(id string) {
	m.mu.Lock()
	peer, ok := m.peers[id]
	if ok {
		delete(m.peers, id)
		m.metrics.SetMirrorPeers(len(m.peers))
	}
	m.mu.Unlock()

	// Close outside the lock: it fires the state callback, which removes again
	if ok {
		peer.Close()
		m.logger.Info("Spectator left", zap.String("peer", id))
	}
}

// CloseAll closes every peer
func (m *Manager) CloseAll() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[string]*Peer)
	m.metrics.SetMirrorPeers(0)
	m.mu.Unlock()

	for _, peer := range peers {
		peer.Close()
	}
}

// WriteVideo sends one compressed frame to every spectator.
func (m *Manager) WriteVideo(data []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sample := media.Sample{Data: data, Duration: m.duration}
	for _, peer := range m.peers {
		if err := peer.writeSample(sample); err != nil {
			m.logger.Debug("Failed to write sample", zap.String("peer", peer.ID), zap.Error(err))
		}
	}
}

// Peer is one spectator connection
type Peer struct {
	ID string

	pc         *webrtc.PeerConnection
	videoTrack *webrtc.TrackLocalStaticSample
}

func (p *Peer) setupTrack(codec webrtc.RTPCodecCapability) error {
	track, err := webrtc.NewTrackLocalStaticSample(codec, "video", "remoteplay-video")
	if err != nil {
		return fmt.Errorf("failed to create video track: %w", err)
	}

	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add video track: %w", err)
	}
	p.videoTrack = track

	// Drain RTCP so the sender does not stall
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// HandleOffer processes an SDP offer and returns an answer with gathered
// candidates.
func (p *Peer) HandleOffer(offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	<-gatherComplete

	return p.pc.LocalDescription().SDP, nil
}

// AddICECandidate adds a trickled ICE candidate in its JSON form
func (p *Peer) AddICECandidate(candidateJSON string) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		return err
	}
	return p.pc.AddICECandidate(candidate)
}

// OnICECandidate sets a callback for local ICE candidates
func (p *Peer) OnICECandidate(fn func(candidate string)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			candidateJSON, _ := json.Marshal(c.ToJSON())
			fn(string(candidateJSON))
		}
	})
}

func (p *Peer) writeSample(sample media.Sample) error {
	return p.videoTrack.WriteSample(sample)
}

// Close closes the peer connection
func (p *Peer) Close() error {
	return p.pc.Close()
}
