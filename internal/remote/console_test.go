package remote

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zalo/remoteplay/internal/ecdh"
	"github.com/zalo/remoteplay/internal/event"
	"github.com/zalo/remoteplay/internal/protocol"
)

var (
	testRegistKey = [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	testMorning   = [16]byte{0xf0, 0xe0, 0xd0, 0xc0, 0xb0, 0xa0, 0x90, 0x80, 0x70, 0x60, 0x50, 0x40, 0x30, 0x20, 0x10, 0x00}
)

// fakeConsole accepts remote play sessions over an httptest server
type fakeConsole struct {
	t   *testing.T
	srv *httptest.Server

	// reject answers the hello with this quit instead of an ack
	reject *protocol.Quit
	// corruptAck flips a bit of the ack signature
	corruptAck bool
	// stall never answers the hello
	stall bool

	hellos chan *protocol.Hello
	conns  chan *consoleConn
}

type consoleConn struct {
	t    *testing.T
	ws   *websocket.Conn
	send *frameCipher
	recv *frameCipher
}

func newFakeConsole(t *testing.T) *fakeConsole {
	fc := &fakeConsole{
		t:      t,
		hellos: make(chan *protocol.Hello, 1),
		conns:  make(chan *consoleConn, 1),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.Path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc.accept(ws)
	})
	fc.srv = httptest.NewServer(mux)
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeConsole) host() string {
	return strings.TrimPrefix(fc.srv.URL, "http://")
}

func (fc *fakeConsole) accept(ws *websocket.Conn) {
	_, data, err := ws.ReadMessage()
	if err != nil || len(data) == 0 || protocol.MsgType(data[0]) != protocol.MsgHello {
		ws.Close()
		return
	}
	hello, err := protocol.ParseHello(data[1:])
	if err != nil {
		ws.Close()
		return
	}
	fc.hellos <- hello

	if fc.stall {
		// returns once the client hangs up
		ws.ReadMessage()
		ws.Close()
		return
	}

	if fc.reject != nil {
		ws.WriteMessage(websocket.BinaryMessage, append([]byte{byte(protocol.MsgQuit)}, fc.reject.Marshal()...))
		ws.Close()
		return
	}

	hk := HandshakeKey(testMorning, testRegistKey)
	kx, err := ecdh.New(nil)
	if err != nil {
		ws.Close()
		return
	}
	defer kx.Close()

	secret, err := kx.DeriveSecret(hello.PublicKey, hk[:], hello.Signature)
	if err != nil {
		ws.Close()
		return
	}

	pub, sig, _ := kx.LocalPublicKey(hk[:])
	if fc.corruptAck {
		sig[0] ^= 0x01
	}
	ack, _ := (&protocol.HelloAck{PublicKey: pub, Signature: sig}).Marshal()
	ws.WriteMessage(websocket.BinaryMessage, append([]byte{byte(protocol.MsgHelloAck)}, ack...))

	keys, _ := ecdh.DeriveSessionKeys(secret, testMorning[:])
	send, _ := newFrameCipher(keys.HostToClient[:], protocol.DirHostToClient)
	recv, _ := newFrameCipher(keys.ClientToHost[:], protocol.DirClientToHost)

	fc.conns <- &consoleConn{t: fc.t, ws: ws, send: send, recv: recv}
}

func (fc *fakeConsole) conn() *consoleConn {
	select {
	case c := <-fc.conns:
		return c
	case <-time.After(5 * time.Second):
		fc.t.Fatal("console never accepted a session")
		return nil
	}
}

func (cc *consoleConn) write(t protocol.MsgType, payload []byte) {
	require.NoError(cc.t, cc.ws.WriteMessage(websocket.BinaryMessage, cc.send.seal(t, payload)))
}

// read returns the next message of type want, skipping the others.
func (cc *consoleConn) read(want protocol.MsgType) []byte {
	cc.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := cc.ws.ReadMessage()
		require.NoError(cc.t, err)
		t, payload, err := cc.recv.open(data)
		require.NoError(cc.t, err)
		if t == want {
			return payload
		}
	}
}

// recordingSink collects posted events
type recordingSink struct {
	events chan event.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan event.Event, 64)}
}

func (s *recordingSink) Post(ev event.Event) {
	s.events <- ev
}

func (s *recordingSink) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event posted")
		return nil
	}
}
