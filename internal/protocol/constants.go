// Package protocol implements the remote play wire format
package protocol

import "fmt"

// Version is the protocol version sent in Hello
const Version = 1

// Network endpoint
const (
	DefaultPort = 9295
	Path        = "/remoteplay"
)

// MsgType identifies a message
type MsgType uint8

// Message types
const (
	MsgHello           MsgType = 0x01
	MsgHelloAck        MsgType = 0x02
	MsgAudioHeader     MsgType = 0x10
	MsgAudioData       MsgType = 0x11
	MsgVideoData       MsgType = 0x12
	MsgFeedbackState   MsgType = 0x20
	MsgFeedbackHistory MsgType = 0x21
	MsgLoginPINRequest MsgType = 0x30
	MsgLoginPIN        MsgType = 0x31
	MsgSleep           MsgType = 0x40
	MsgQuit            MsgType = 0x41
)

var msgTypeNames = map[MsgType]string{
	MsgHello:           "hello",
	MsgHelloAck:        "hello_ack",
	MsgAudioHeader:     "audio_header",
	MsgAudioData:       "audio_data",
	MsgVideoData:       "video_data",
	MsgFeedbackState:   "feedback_state",
	MsgFeedbackHistory: "feedback_history",
	MsgLoginPINRequest: "login_pin_request",
	MsgLoginPIN:        "login_pin",
	MsgSleep:           "sleep",
	MsgQuit:            "quit",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%#x)", uint8(t))
}

// Known reports whether t is a defined message type.
func (t MsgType) Known() bool {
	_, ok := msgTypeNames[t]
	return ok
}

// Stream directions, the first nonce byte of encrypted messages
const (
	DirClientToHost = 0x43
	DirHostToClient = 0x48
)

// Codec is the requested video codec
type Codec uint8

const (
	CodecH264 Codec = 0
	CodecH265 Codec = 1
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps a codec name to a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "h264":
		return CodecH264, nil
	case "h265", "hevc":
		return CodecH265, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

// VideoProfile is the requested stream resolution and rate
type VideoProfile struct {
	Width       uint16
	Height      uint16
	MaxFPS      uint16
	BitrateKbps uint32
	Codec       Codec
}

// Standard video profiles by preset name
var videoPresets = map[string]VideoProfile{
	"360p":  {Width: 640, Height: 360, MaxFPS: 30, BitrateKbps: 2000},
	"540p":  {Width: 960, Height: 540, MaxFPS: 30, BitrateKbps: 6000},
	"720p":  {Width: 1280, Height: 720, MaxFPS: 60, BitrateKbps: 10000},
	"1080p": {Width: 1920, Height: 1080, MaxFPS: 60, BitrateKbps: 15000},
}

// VideoPreset returns the profile for a resolution name such as "720p".
func VideoPreset(name string) (VideoProfile, bool) {
	p, ok := videoPresets[name]
	return p, ok
}
