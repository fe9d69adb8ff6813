// Package feedback encodes controller state for the console's feedback channel.
package feedback

import (
	"fmt"
	"strings"
)

// Button is a bit in the controller button mask
type Button uint32

// Button flags
const (
	ButtonCross     Button = 1 << 0
	ButtonMoon      Button = 1 << 1
	ButtonBox       Button = 1 << 2
	ButtonPyramid   Button = 1 << 3
	ButtonDPadLeft  Button = 1 << 4
	ButtonDPadRight Button = 1 << 5
	ButtonDPadUp    Button = 1 << 6
	ButtonDPadDown  Button = 1 << 7
	ButtonL1        Button = 1 << 8
	ButtonR1        Button = 1 << 9
	ButtonL3        Button = 1 << 10
	ButtonR3        Button = 1 << 11
	ButtonOptions   Button = 1 << 12
	ButtonShare     Button = 1 << 13
	ButtonTouchpad  Button = 1 << 14
	ButtonPS        Button = 1 << 15

	// Analog triggers reported as buttons in history events
	ButtonL2 Button = 1 << 16
	ButtonR2 Button = 1 << 17
)

// ButtonCount is the number of defined button flags
const ButtonCount = 18

var buttonNames = map[Button]string{
	ButtonCross:     "cross",
	ButtonMoon:      "moon",
	ButtonBox:       "box",
	ButtonPyramid:   "pyramid",
	ButtonDPadLeft:  "dpad_left",
	ButtonDPadRight: "dpad_right",
	ButtonDPadUp:    "dpad_up",
	ButtonDPadDown:  "dpad_down",
	ButtonL1:        "l1",
	ButtonR1:        "r1",
	ButtonL3:        "l3",
	ButtonR3:        "r3",
	ButtonOptions:   "options",
	ButtonShare:     "share",
	ButtonTouchpad:  "touchpad",
	ButtonPS:        "ps",
	ButtonL2:        "l2",
	ButtonR2:        "r2",
}

func (b Button) String() string {
	if name, ok := buttonNames[b]; ok {
		return name
	}
	return fmt.Sprintf("button(%#x)", uint32(b))
}

// ParseButton looks up a button by its lower-case name.
func ParseButton(name string) (Button, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for b, n := range buttonNames {
		if n == name {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown button %q", name)
}

// Stick axis limits
const (
	AxisMax         = 0x7fff
	KeyboardAxisMax = 0x3fff
)

// TouchesMax is the number of simultaneous touch points tracked
const TouchesMax = 2

// TouchNone marks an unused touch slot
const TouchNone int8 = -1

// Touch is one touchpad contact
type Touch struct {
	ID int8
	X  uint16
	Y  uint16
}

// Active reports whether the slot holds a contact.
func (t Touch) Active() bool {
	return t.ID >= 0
}

// ControllerState is a snapshot of every button, trigger, stick and touch.
type ControllerState struct {
	Buttons Button

	L2 uint8
	R2 uint8

	LeftX  int16
	LeftY  int16
	RightX int16
	RightY int16

	Touches [TouchesMax]Touch
}

// NewControllerState returns an idle state with empty touch slots.
func NewControllerState() ControllerState {
	var s ControllerState
	for i := range s.Touches {
		s.Touches[i].ID = TouchNone
	}
	return s
}

// Pressed reports whether every bit of b is set.
func (s ControllerState) Pressed(b Button) bool {
	return s.Buttons&b == b
}
