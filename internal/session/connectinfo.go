package session

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zalo/remoteplay/internal/errs"
	"github.com/zalo/remoteplay/internal/logging"
	"github.com/zalo/remoteplay/internal/protocol"
)

// Secret sizes
const (
	RegistKeySize = 16
	MorningSize   = 16
)

// RegistKey is the key obtained when the client was registered with the console
type RegistKey [RegistKeySize]byte

// Morning is the console's registration secret
type Morning [MorningSize]byte

// NewRegistKey copies b into a RegistKey. Any length other than 16 is a
// construction error.
func NewRegistKey(b []byte) (RegistKey, error) {
	var k RegistKey
	if len(b) != RegistKeySize {
		return k, errs.E(errs.Construction, "regist key",
			fmt.Errorf("got %d bytes, want %d", len(b), RegistKeySize))
	}
	copy(k[:], b)
	return k, nil
}

// NewMorning copies b into a Morning. Any length other than 16 is a
// construction error.
func NewMorning(b []byte) (Morning, error) {
	var m Morning
	if len(b) != MorningSize {
		return m, errs.E(errs.Construction, "morning",
			fmt.Errorf("got %d bytes, want %d", len(b), MorningSize))
	}
	copy(m[:], b)
	return m, nil
}

// ParseRegistKey decodes a hex regist key.
func ParseRegistKey(s string) (RegistKey, error) {
	b, err := decodeHex(s)
	if err != nil {
		return RegistKey{}, errs.E(errs.Construction, "regist key", err)
	}
	return NewRegistKey(b)
}

// ParseMorning decodes a hex morning.
func ParseMorning(s string) (Morning, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Morning{}, errs.E(errs.Construction, "morning", err)
	}
	return NewMorning(b)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}

// ConnectInfo is everything needed to open a session
type ConnectInfo struct {
	Host      string
	RegistKey RegistKey
	Morning   Morning
	Video     protocol.VideoProfile

	KeyMap  KeyMap
	LogSink logging.LogSink

	// AudioBufferSize is the playback queue in bytes.
	AudioBufferSize int
	// HWDecodeEngine names the hardware decoder; empty decodes in software.
	HWDecodeEngine string
	Fullscreen     bool
}

// Validate checks the fields a session cannot start without.
func (ci *ConnectInfo) Validate() error {
	if ci.Host == "" {
		return errs.E(errs.Construction, "connect info", fmt.Errorf("missing host"))
	}
	if ci.Video.Width == 0 || ci.Video.Height == 0 {
		return errs.E(errs.Construction, "connect info",
			fmt.Errorf("invalid resolution %dx%d", ci.Video.Width, ci.Video.Height))
	}
	if ci.AudioBufferSize < 0 {
		return errs.E(errs.Construction, "connect info",
			fmt.Errorf("negative audio buffer size %d", ci.AudioBufferSize))
	}
	return nil
}

func (ci *ConnectInfo) zero() {
	clear(ci.RegistKey[:])
	clear(ci.Morning[:])
}
