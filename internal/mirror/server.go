package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// MessageType names a signaling message
type MessageType string

const (
	// Spectator -> mirror
	MsgOffer     MessageType = "offer"
	MsgCandidate MessageType = "candidate"

	// Mirror -> spectator
	MsgPeerInfo     MessageType = "peer_info"
	MsgAnswer       MessageType = "answer"
	MsgICECandidate MessageType = "ice_candidate"
	MsgError        MessageType = "error"
)

// Message is the signaling envelope
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Server exposes the mirror's signaling endpoint
type Server struct {
	manager    *Manager
	iceServers []string
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates a signaling server for manager on addr.
func NewServer(addr string, manager *Manager, iceServers []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager:    manager,
		iceServers: iceServers,
		logger:     logger.Named("mirror"),
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the signaling routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/ice-servers", s.handleICEServers)
	return mux
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Mirror listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.manager.CloseAll()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleICEServers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"ice_servers": s.iceServers})
}

// wsClient is one connected spectator
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	peer, err := s.manager.CreatePeer()
	if err != nil {
		conn.WriteJSON(Message{Type: MsgError, Payload: jsonRaw(map[string]string{"error": err.Error()})})
		conn.Close()
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	peer.OnICECandidate(func(candidate string) {
		client.sendJSON(Message{
			Type:    MsgICECandidate,
			Payload: jsonRaw(map[string]string{"candidate": candidate}),
		})
	})

	client.sendJSON(Message{
		Type:    MsgPeerInfo,
		Payload: jsonRaw(map[string]string{"peer_id": peer.ID}),
	})

	go client.writePump()
	go s.readPump(client, peer)
}

func (s *Server) readPump(c *wsClient, peer *Peer) {
	defer func() {
		s.manager.RemovePeer(peer.ID)
		c.close()
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket error", zap.String("peer", peer.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("Invalid signaling message", zap.Error(err))
			continue
		}
		s.handleMessage(c, peer, msg)
	}
}

func (s *Server) handleMessage(c *wsClient, peer *Peer, msg Message) {
	switch msg.Type {
	case MsgOffer:
		var payload struct {
			SDP string `json:"sdp"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError(err)
			return
		}

		answer, err := peer.HandleOffer(payload.SDP)
		if err != nil {
			c.sendError(err)
			return
		}
		c.sendJSON(Message{
			Type:    MsgAnswer,
			Payload: jsonRaw(map[string]string{"sdp": answer}),
		})

	case MsgCandidate:
		var payload struct {
			Candidate string `json:"candidate"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError(err)
			return
		}
		if err := peer.AddICECandidate(payload.Candidate); err != nil {
			s.logger.Debug("Failed to add ICE candidate", zap.String("peer", peer.ID), zap.Error(err))
		}

	default:
		s.logger.Debug("Unknown signaling message", zap.String("type", string(msg.Type)))
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *wsClient) sendError(err error) {
	c.sendJSON(Message{Type: MsgError, Payload: jsonRaw(map[string]string{"error": err.Error()})})
}

func (c *wsClient) sendJSON(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, drop the spectator
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func jsonRaw(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
