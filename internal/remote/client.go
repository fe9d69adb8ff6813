// Package remote implements the network side of a remote play session: the
// websocket transport, the handshake and the encrypted message stream.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zalo/remoteplay/internal/ecdh"
	"github.com/zalo/remoteplay/internal/errs"
	"github.com/zalo/remoteplay/internal/event"
	"github.com/zalo/remoteplay/internal/feedback"
	"github.com/zalo/remoteplay/internal/metrics"
	"github.com/zalo/remoteplay/internal/protocol"
)

var (
	// ErrNotConnected is returned by senders before Start succeeded or after Stop
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("transport already started")
)

// Timeouts
const (
	DefaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
)

// Config describes the console to connect to
type Config struct {
	// Host is a host name or address, optionally with a port.
	Host      string
	RegistKey [16]byte
	Morning   [16]byte
	Profile   protocol.VideoProfile

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Rand is the key exchange random source, crypto/rand when nil.
	Rand io.Reader

	HandshakeTimeout time.Duration
	FeedbackOptions  []feedback.SenderOption
}

// Client is one connection to a console. It can be started once.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	started  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// writeMu serializes websocket writes and guards the connection state
	writeMu sync.Mutex
	conn    *websocket.Conn
	send    *frameCipher
	recv    *frameCipher
	cancel  context.CancelFunc

	sender atomic.Pointer[feedback.Sender]
}

// NewClient creates an unstarted client.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.Named("remote").With(zap.String("host", cfg.Host)),
		metrics: cfg.Metrics,
	}
}

// URL returns the websocket endpoint of host.
func URL(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(protocol.DefaultPort))
	}
	u := url.URL{Scheme: "ws", Host: host, Path: protocol.Path}
	return u.String()
}

// Start connects, runs the handshake and starts the receive loop and the
// feedback sender. Events are posted to sink until exactly one Quit.
func (c *Client) Start(ctx context.Context, sink event.Sink) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	endpoint := URL(c.cfg.Host)
	c.logger.Info("Connecting to console", zap.String("url", endpoint))

	conn, _, err := c.cfg.Dialer.DialContext(hctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	// Publish the conn so Stop can close it under a stalled handshake
	c.writeMu.Lock()
	if c.stopping.Load() {
		c.writeMu.Unlock()
		conn.Close()
		return fmt.Errorf("stopped while connecting: %w", ErrNotConnected)
	}
	c.conn = conn
	c.writeMu.Unlock()

	send, recv, err := c.handshake(hctx, conn)
	if err != nil {
		conn.Close()
		if c.stopping.Load() {
			return fmt.Errorf("stopped during handshake: %w", ErrNotConnected)
		}
		return err
	}

	streamCtx, streamCancel := context.WithCancel(context.WithoutCancel(ctx))
	opts := append([]feedback.SenderOption{feedback.WithMetrics(c.metrics)}, c.cfg.FeedbackOptions...)
	sender := feedback.NewSender(feedbackWriter{c}, c.logger, opts...)

	// The stopping check and wg.Add form one step with closeConn, so a Join
	// after Stop either waits for both goroutines or none are started.
	c.writeMu.Lock()
	if c.stopping.Load() {
		c.writeMu.Unlock()
		streamCancel()
		conn.Close()
		return fmt.Errorf("stopped during handshake: %w", ErrNotConnected)
	}
	c.send, c.recv = send, recv
	c.cancel = streamCancel
	c.sender.Store(sender)
	c.wg.Add(2)
	c.writeMu.Unlock()

	go func() {
		defer c.wg.Done()
		sender.Run(streamCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.readLoop(sink)
	}()

	c.logger.Info("Session established")
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) (send, recv *frameCipher, err error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
		defer conn.SetReadDeadline(time.Time{})
		defer conn.SetWriteDeadline(time.Time{})
	}

	hk := HandshakeKey(c.cfg.Morning, c.cfg.RegistKey)
	defer clear(hk[:])

	kx, err := ecdh.New(c.cfg.Rand)
	if err != nil {
		return nil, nil, err
	}
	defer kx.Close()

	pub, sig, err := kx.LocalPublicKey(hk[:])
	if err != nil {
		return nil, nil, err
	}

	hello := &protocol.Hello{
		Version:   protocol.Version,
		Profile:   c.cfg.Profile,
		PublicKey: pub,
		Signature: sig,
	}
	payload, err := hello.Marshal()
	if err != nil {
		return nil, nil, err
	}
	msg := append([]byte{byte(protocol.MsgHello)}, payload...)
	if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return nil, nil, fmt.Errorf("failed to send hello: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read hello ack: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, errs.E(errs.Protocol, "handshake", errors.New("empty reply"))
	}

	switch t := protocol.MsgType(data[0]); t {
	case protocol.MsgHelloAck:
		ack, err := protocol.ParseHelloAck(data[1:])
		if err != nil {
			return nil, nil, errs.E(errs.Protocol, "handshake", err)
		}
		return sessionCiphers(kx, ack, hk[:], c.cfg.Morning)

	case protocol.MsgQuit:
		q, err := protocol.ParseQuit(data[1:])
		if err != nil {
			return nil, nil, errs.E(errs.Protocol, "handshake", err)
		}
		return nil, nil, &QuitError{Reason: event.QuitReason(q.Reason), Text: q.Text}

	default:
		return nil, nil, errs.E(errs.Protocol, "handshake", fmt.Errorf("unexpected %s", t))
	}
}

func (c *Client) readLoop(sink event.Sink) {
	quit := event.Quit{Reason: event.QuitStreamConnectionUnknown}

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case c.stopping.Load():
				quit = event.Quit{Reason: event.QuitStopped}
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				quit = event.Quit{Reason: event.QuitStreamConnectionRemoteDisconnected, Text: err.Error()}
			default:
				quit = event.Quit{Reason: event.QuitStreamConnectionUnknown, Text: err.Error()}
			}
			break
		}

		if mt != websocket.BinaryMessage {
			c.logger.Debug("Ignoring non-binary message", zap.Int("type", mt))
			continue
		}

		t, payload, err := c.recv.open(data)
		if err != nil {
			c.logger.Error("Failed to decrypt message", zap.Error(err))
			quit = event.Quit{Reason: event.QuitStreamConnectionUnknown, Text: err.Error()}
			break
		}
		c.metrics.RecordMessage(t.String(), len(data))

		if t == protocol.MsgQuit {
			q, err := protocol.ParseQuit(payload)
			if err != nil {
				c.dropped(t, err)
				continue
			}
			quit = event.Quit{Reason: event.QuitReason(q.Reason), Text: q.Text}
			break
		}

		if err := c.dispatch(t, payload, sink); err != nil {
			c.dropped(t, err)
		}
	}

	if c.stopping.Load() {
		quit = event.Quit{Reason: event.QuitStopped}
	}

	c.closeConn()

	c.logger.Info("Session ended", zap.Stringer("reason", quit.Reason), zap.String("text", quit.Text))
	sink.Post(quit)
}

func (c *Client) dropped(t protocol.MsgType, err error) {
	c.metrics.RecordProtocolError()
	c.logger.Warn("Dropping malformed message",
		zap.Stringer("type", t),
		zap.Error(errs.E(errs.Protocol, "receive", err)))
}

func (c *Client) dispatch(t protocol.MsgType, payload []byte, sink event.Sink) error {
	switch t {
	case protocol.MsgAudioHeader:
		h, err := protocol.ParseAudioHeader(payload)
		if err != nil {
			return err
		}
		sink.Post(event.AudioFormat{Channels: h.Channels, Rate: h.Rate})

	case protocol.MsgAudioData:
		pcm, err := protocol.DecodePCM(payload)
		if err != nil {
			return err
		}
		sink.Post(event.AudioSamples{PCM: pcm})

	case protocol.MsgVideoData:
		sink.Post(event.VideoSample{Data: payload})

	case protocol.MsgLoginPINRequest:
		incorrect, err := protocol.ParseLoginPINRequest(payload)
		if err != nil {
			return err
		}
		sink.Post(event.LoginPINRequest{Incorrect: incorrect})

	default:
		return fmt.Errorf("unexpected %s from console", t)
	}
	return nil
}

// write encrypts and sends one message.
func (c *Client) write(t protocol.MsgType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil || c.send == nil {
		return ErrNotConnected
	}

	msg := c.send.seal(t, payload)
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", t, err)
	}
	return nil
}

func (c *Client) closeConn() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.send = nil
}

// SetControllerState hands the merged controller state to the feedback sender.
func (c *Client) SetControllerState(state feedback.ControllerState) error {
	sender := c.sender.Load()
	if sender == nil || c.stopping.Load() {
		return ErrNotConnected
	}
	sender.SetState(state)
	return nil
}

// SetLoginPIN answers a login PIN request.
func (c *Client) SetLoginPIN(pin []byte) error {
	return c.write(protocol.MsgLoginPIN, pin)
}

// RequestSleep asks the console to enter rest mode, then stops.
func (c *Client) RequestSleep() error {
	err := c.write(protocol.MsgSleep, nil)
	if err != nil && !errors.Is(err, ErrNotConnected) {
		c.logger.Warn("Failed to request sleep", zap.Error(err))
	}
	if stopErr := c.Stop(); stopErr != nil {
		return stopErr
	}
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Stop tells the console the session is over and closes the connection,
// which ends the receive loop. It is safe to call more than once.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)

		quit := protocol.Quit{Reason: uint32(event.QuitStopped)}
		if err := c.write(protocol.MsgQuit, quit.Marshal()); err != nil && !errors.Is(err, ErrNotConnected) {
			c.logger.Debug("Failed to send quit", zap.Error(err))
		}
		c.closeConn()
	})
	return nil
}

// Join waits for the receive loop and the feedback sender to exit.
func (c *Client) Join() error {
	c.wg.Wait()
	return nil
}

// Close stops the client, waits for its goroutines and drops the ciphers.
func (c *Client) Close() error {
	c.Stop()
	c.Join()

	c.writeMu.Lock()
	c.send, c.recv = nil, nil
	c.writeMu.Unlock()
	return nil
}

// feedbackWriter sends feedback records over the encrypted stream
type feedbackWriter struct {
	c *Client
}

func (w feedbackWriter) WriteState(seq uint16, record [feedback.StateSize]byte) error {
	return w.c.write(protocol.MsgFeedbackState, protocol.Feedback{Seq: seq, Data: record[:]}.Marshal())
}

func (w feedbackWriter) WriteHistory(seq uint16, events []byte) error {
	return w.c.write(protocol.MsgFeedbackHistory, protocol.Feedback{Seq: seq, Data: events}.Marshal())
}
