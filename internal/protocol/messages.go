package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ByteOrder is the byte order of every integer field except PCM samples
var ByteOrder = binary.BigEndian

// ErrMalformed indicates a payload that does not match its message type
var ErrMalformed = errors.New("malformed message")

// Fixed sizes
const (
	SeqSize         = 8
	FeedbackSeqSize = 2
	MaxKeySize      = 0xff
)

func malformed(t MsgType, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, t, fmt.Sprintf(format, args...))
}

// reader consumes a payload field by field, remembering the first error
type reader struct {
	t   MsgType
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = malformed(r.t, "need %d bytes, have %d", n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return ByteOrder.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return ByteOrder.Uint32(b)
}

// bytes8 reads a u8 length-prefixed field.
func (r *reader) bytes8() []byte {
	n := int(r.u8())
	return append([]byte(nil), r.take(n)...)
}

func (r *reader) done() error {
	if r.err == nil && len(r.buf) != 0 {
		r.err = malformed(r.t, "%d trailing bytes", len(r.buf))
	}
	return r.err
}

// Hello opens the handshake
type Hello struct {
	Version   uint16
	Profile   VideoProfile
	PublicKey []byte
	Signature []byte
}

// Marshal encodes h without the type byte.
func (h *Hello) Marshal() ([]byte, error) {
	if len(h.PublicKey) > MaxKeySize || len(h.Signature) > MaxKeySize {
		return nil, fmt.Errorf("hello key material too long")
	}
	buf := make([]byte, 0, 15+len(h.PublicKey)+len(h.Signature))
	buf = ByteOrder.AppendUint16(buf, h.Version)
	buf = ByteOrder.AppendUint16(buf, h.Profile.Width)
	buf = ByteOrder.AppendUint16(buf, h.Profile.Height)
	buf = ByteOrder.AppendUint16(buf, h.Profile.MaxFPS)
	buf = ByteOrder.AppendUint32(buf, h.Profile.BitrateKbps)
	buf = append(buf, uint8(h.Profile.Codec))
	buf = append(buf, uint8(len(h.PublicKey)))
	buf = append(buf, h.PublicKey...)
	buf = append(buf, uint8(len(h.Signature)))
	buf = append(buf, h.Signature...)
	return buf, nil
}

// ParseHello decodes a Hello payload.
func ParseHello(payload []byte) (*Hello, error) {
	r := &reader{t: MsgHello, buf: payload}
	h := &Hello{Version: r.u16()}
	h.Profile.Width = r.u16()
	h.Profile.Height = r.u16()
	h.Profile.MaxFPS = r.u16()
	h.Profile.BitrateKbps = r.u32()
	h.Profile.Codec = Codec(r.u8())
	h.PublicKey = r.bytes8()
	h.Signature = r.bytes8()
	if err := r.done(); err != nil {
		return nil, err
	}
	return h, nil
}

// HelloAck completes the handshake
type HelloAck struct {
	PublicKey []byte
	Signature []byte
}

// Marshal encodes a without the type byte.
func (a *HelloAck) Marshal() ([]byte, error) {
	if len(a.PublicKey) > MaxKeySize || len(a.Signature) > MaxKeySize {
		return nil, fmt.Errorf("hello ack key material too long")
	}
	buf := make([]byte, 0, 2+len(a.PublicKey)+len(a.Signature))
	buf = append(buf, uint8(len(a.PublicKey)))
	buf = append(buf, a.PublicKey...)
	buf = append(buf, uint8(len(a.Signature)))
	buf = append(buf, a.Signature...)
	return buf, nil
}

// ParseHelloAck decodes a HelloAck payload.
func ParseHelloAck(payload []byte) (*HelloAck, error) {
	r := &reader{t: MsgHelloAck, buf: payload}
	a := &HelloAck{PublicKey: r.bytes8(), Signature: r.bytes8()}
	if err := r.done(); err != nil {
		return nil, err
	}
	return a, nil
}

// AudioHeader announces the PCM format
type AudioHeader struct {
	Channels uint32
	Rate     uint32
}

// Marshal encodes h.
func (h AudioHeader) Marshal() []byte {
	buf := make([]byte, 0, 8)
	buf = ByteOrder.AppendUint32(buf, h.Channels)
	return ByteOrder.AppendUint32(buf, h.Rate)
}

// ParseAudioHeader decodes an AudioHeader payload.
func ParseAudioHeader(payload []byte) (AudioHeader, error) {
	r := &reader{t: MsgAudioHeader, buf: payload}
	h := AudioHeader{Channels: r.u32(), Rate: r.u32()}
	return h, r.done()
}

// EncodePCM encodes samples as little-endian s16.
func EncodePCM(pcm []int16) []byte {
	buf := make([]byte, 0, 2*len(pcm))
	for _, s := range pcm {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}

// DecodePCM decodes little-endian s16 samples.
func DecodePCM(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, malformed(MsgAudioData, "odd length %d", len(payload))
	}
	pcm := make([]int16, len(payload)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	return pcm, nil
}

// Feedback is a sequenced feedback record, state or history
type Feedback struct {
	Seq  uint16
	Data []byte
}

// Marshal encodes f.
func (f Feedback) Marshal() []byte {
	buf := make([]byte, 0, FeedbackSeqSize+len(f.Data))
	buf = ByteOrder.AppendUint16(buf, f.Seq)
	return append(buf, f.Data...)
}

// ParseFeedback decodes a feedback payload of type t. State records must
// be exactly stateSize bytes; pass 0 for history.
func ParseFeedback(t MsgType, payload []byte, stateSize int) (Feedback, error) {
	r := &reader{t: t, buf: payload}
	f := Feedback{Seq: r.u16()}
	if r.err != nil {
		return f, r.err
	}
	if stateSize > 0 && len(r.buf) != stateSize {
		return f, malformed(t, "state record is %d bytes, want %d", len(r.buf), stateSize)
	}
	f.Data = append([]byte(nil), r.buf...)
	return f, nil
}

// ParseLoginPINRequest decodes the incorrect flag.
func ParseLoginPINRequest(payload []byte) (bool, error) {
	r := &reader{t: MsgLoginPINRequest, buf: payload}
	incorrect := r.u8() != 0
	return incorrect, r.done()
}

// Quit ends the session
type Quit struct {
	Reason uint32
	Text   string
}

// Marshal encodes q.
func (q Quit) Marshal() []byte {
	buf := make([]byte, 0, 4+len(q.Text))
	buf = ByteOrder.AppendUint32(buf, q.Reason)
	return append(buf, q.Text...)
}

// ParseQuit decodes a Quit payload.
func ParseQuit(payload []byte) (Quit, error) {
	r := &reader{t: MsgQuit, buf: payload}
	q := Quit{Reason: r.u32()}
	if r.err != nil {
		return q, r.err
	}
	if !utf8.Valid(r.buf) {
		return q, malformed(MsgQuit, "text is not utf-8")
	}
	q.Text = string(r.buf)
	return q, nil
}
