package feedback

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zalo/remoteplay/internal/errs"
)

// StateSize is the length of a formatted feedback state record
const StateSize = 0x19

// HistoryEventMaxSize is the largest encoded history event
const HistoryEventMaxSize = 5

// History event prefixes
const (
	eventPrefixButton    = 0x80
	eventPrefixTouchDown = 0xd0
	eventPrefixTouchUp   = 0xc0
)

var (
	// ErrInvalidData indicates a button outside the encodable set
	ErrInvalidData = errors.New("invalid data")
	// ErrBufferTooSmall indicates the destination cannot hold the serialized events
	ErrBufferTooSmall = errors.New("buffer too small")
)

// stateHeader precedes the stick axes in every state record. The console
// expects these exact bytes.
var stateHeader = [0x11]byte{
	0xa0, 0xff, 0x7f, 0xff, 0x7f, 0xff, 0x7f, 0xff,
	0x7f, 0x99, 0x99, 0xff, 0x7f, 0xfe, 0xf7, 0xef,
	0x1f,
}

// FormatState encodes the stick axes of state into a feedback state record.
func FormatState(state ControllerState) [StateSize]byte {
	var buf [StateSize]byte
	copy(buf[:], stateHeader[:])
	binary.BigEndian.PutUint16(buf[0x11:], uint16(state.LeftX))
	binary.BigEndian.PutUint16(buf[0x13:], uint16(state.LeftY))
	binary.BigEndian.PutUint16(buf[0x15:], uint16(state.RightX))
	binary.BigEndian.PutUint16(buf[0x17:], uint16(state.RightY))
	return buf
}

// buttonCodes maps edge-only buttons to their second byte
var buttonCodes = map[Button]byte{
	ButtonCross:     0x88,
	ButtonMoon:      0x89,
	ButtonBox:       0x8a,
	ButtonPyramid:   0x8b,
	ButtonDPadLeft:  0x82,
	ButtonDPadRight: 0x83,
	ButtonDPadUp:    0x80,
	ButtonDPadDown:  0x81,
	ButtonL1:        0x84,
	ButtonR1:        0x85,
	ButtonL2:        0x86,
	ButtonR2:        0x87,
}

// stateCodes maps buttons that carry their state in the second byte
// to the pressed and released codes.
var stateCodes = map[Button][2]byte{
	ButtonL3:       {0xaf, 0x8f},
	ButtonR3:       {0xb0, 0x90},
	ButtonOptions:  {0xac, 0x8c},
	ButtonShare:    {0xad, 0x8d},
	ButtonTouchpad: {0xb1, 0x91},
	ButtonPS:       {0xae, 0x8e},
}

// HistoryEvent is one encoded button or touch change
type HistoryEvent struct {
	buf [HistoryEventMaxSize]byte
	len int
}

// Bytes returns the encoded event.
func (e *HistoryEvent) Bytes() []byte {
	return e.buf[:e.len]
}

// Len returns the encoded length.
func (e *HistoryEvent) Len() int {
	return e.len
}

// SetButton encodes a button change. Buttons outside the encodable set
// return ErrInvalidData and leave the event unchanged.
func (e *HistoryEvent) SetButton(button Button, pressed bool) error {
	if code, ok := buttonCodes[button]; ok {
		e.buf = [HistoryEventMaxSize]byte{eventPrefixButton, code}
		e.len = 2
		return nil
	}

	codes, ok := stateCodes[button]
	if !ok {
		return ErrInvalidData
	}

	e.buf = [HistoryEventMaxSize]byte{eventPrefixButton, codes[1]}
	if pressed {
		e.buf[1] = codes[0]
	}
	e.len = 2
	return nil
}

// SetTouch encodes a touch contact going down or up. Coordinates are 12 bit.
func (e *HistoryEvent) SetTouch(down bool, pointerID uint8, x, y uint16) {
	e.buf[0] = eventPrefixTouchUp
	if down {
		e.buf[0] = eventPrefixTouchDown
	}
	e.buf[1] = pointerID & 0x7f
	e.buf[2] = uint8(x >> 4)
	e.buf[3] = uint8((x&0xf)<<4) | uint8(y>>8)
	e.buf[4] = uint8(y)
	e.len = 5
}

// DecodedEvent is the meaning of one serialized history event
type DecodedEvent struct {
	Button Button
	// HasState is set for buttons that encode pressed/released.
	HasState bool
	Pressed  bool

	Touch     bool
	Down      bool
	PointerID uint8
	X, Y      uint16
}

// ParseHistory splits a serialized history stream into events. Each event's
// length follows from its leading byte.
func ParseHistory(buf []byte) ([]DecodedEvent, error) {
	var events []DecodedEvent

	for len(buf) > 0 {
		switch buf[0] {
		case eventPrefixButton:
			if len(buf) < 2 {
				return events, errs.E(errs.Protocol, "parse history", fmt.Errorf("truncated button event"))
			}
			ev, err := decodeButton(buf[1])
			if err != nil {
				return events, errs.E(errs.Protocol, "parse history", err)
			}
			events = append(events, ev)
			buf = buf[2:]

		case eventPrefixTouchDown, eventPrefixTouchUp:
			if len(buf) < 5 {
				return events, errs.E(errs.Protocol, "parse history", fmt.Errorf("truncated touch event"))
			}
			events = append(events, DecodedEvent{
				Touch:     true,
				Down:      buf[0] == eventPrefixTouchDown,
				PointerID: buf[1] & 0x7f,
				X:         uint16(buf[2])<<4 | uint16(buf[3]>>4),
				Y:         uint16(buf[3]&0xf)<<8 | uint16(buf[4]),
			})
			buf = buf[5:]

		default:
			return events, errs.E(errs.Protocol, "parse history", fmt.Errorf("unknown event prefix %#x", buf[0]))
		}
	}

	return events, nil
}

func decodeButton(code byte) (DecodedEvent, error) {
	for b, c := range buttonCodes {
		if c == code {
			return DecodedEvent{Button: b}, nil
		}
	}
	for b, c := range stateCodes {
		switch code {
		case c[0]:
			return DecodedEvent{Button: b, HasState: true, Pressed: true}, nil
		case c[1]:
			return DecodedEvent{Button: b, HasState: true}, nil
		}
	}
	return DecodedEvent{}, fmt.Errorf("unknown button code %#x", code)
}
