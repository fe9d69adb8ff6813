package session

import (
	"github.com/zalo/remoteplay/internal/feedback"
)

// inputSourceID names one producer of controller input
type inputSourceID int

const (
	sourceGamepad inputSourceID = iota
	sourceKeyboard
	sourceTouch
	sourceCount
)

// inputSource is the state one producer last reported. Every analog value
// and touch slot carries the merge clock tick of its last change.
type inputSource struct {
	buttons feedback.Button

	values [axisCount]int32
	stamps [axisCount]uint64

	touches     [feedback.TouchesMax]feedback.Touch
	touchStamps [feedback.TouchesMax]uint64
}

// inputMerger combines all sources into the one state sent to the console.
// Buttons are OR-ed; each analog value and touch slot comes from the source
// that changed it last.
type inputMerger struct {
	clock   uint64
	sources [sourceCount]inputSource
}

func newInputMerger() *inputMerger {
	m := &inputMerger{}
	for i := range m.sources {
		for j := range m.sources[i].touches {
			m.sources[i].touches[j].ID = feedback.TouchNone
		}
	}
	return m
}

func (m *inputMerger) setButtons(id inputSourceID, buttons feedback.Button) {
	m.sources[id].buttons = buttons
}

func (m *inputMerger) setValue(id inputSourceID, axis Axis, v int32) {
	src := &m.sources[id]
	if src.values[axis] == v {
		return
	}
	m.clock++
	src.values[axis] = v
	src.stamps[axis] = m.clock
}

func (m *inputMerger) setTouch(id inputSourceID, slot int, t feedback.Touch) {
	src := &m.sources[id]
	if src.touches[slot] == t {
		return
	}
	m.clock++
	src.touches[slot] = t
	src.touchStamps[slot] = m.clock
}

// setState replaces a source with a full controller state.
func (m *inputMerger) setState(id inputSourceID, state feedback.ControllerState) {
	m.setButtons(id, state.Buttons&^(feedback.ButtonL2|feedback.ButtonR2))
	m.setValue(id, AxisL2, int32(state.L2))
	m.setValue(id, AxisR2, int32(state.R2))
	m.setValue(id, AxisLeftX, int32(state.LeftX))
	m.setValue(id, AxisLeftY, int32(state.LeftY))
	m.setValue(id, AxisRightX, int32(state.RightX))
	m.setValue(id, AxisRightY, int32(state.RightY))
	for i, t := range state.Touches {
		m.setTouch(id, i, t)
	}
}

func (m *inputMerger) merged() feedback.ControllerState {
	out := feedback.NewControllerState()

	var values [axisCount]int32
	for axis := Axis(0); axis < axisCount; axis++ {
		var stamp uint64
		for i := range m.sources {
			src := &m.sources[i]
			if src.stamps[axis] > stamp {
				stamp = src.stamps[axis]
				values[axis] = src.values[axis]
			}
		}
	}

	for slot := range out.Touches {
		var stamp uint64
		for i := range m.sources {
			src := &m.sources[i]
			if src.touchStamps[slot] > stamp {
				stamp = src.touchStamps[slot]
				out.Touches[slot] = src.touches[slot]
			}
		}
	}

	for i := range m.sources {
		out.Buttons |= m.sources[i].buttons
	}

	out.L2 = clampTrigger(values[AxisL2])
	out.R2 = clampTrigger(values[AxisR2])
	out.LeftX = clampAxis(values[AxisLeftX])
	out.LeftY = clampAxis(values[AxisLeftY])
	out.RightX = clampAxis(values[AxisRightX])
	out.RightY = clampAxis(values[AxisRightY])
	return out
}

func clampTrigger(v int32) uint8 {
	return uint8(max(0, min(v, 0xff)))
}

func clampAxis(v int32) int16 {
	return int16(max(-feedback.AxisMax, min(v, feedback.AxisMax)))
}

// keyboardState tracks pressed keys and derives the keyboard source from
// them. Opposite stick directions cancel out.
type keyboardState struct {
	keyMap  KeyMap
	pressed map[string]Binding
}

func newKeyboardState(km KeyMap) *keyboardState {
	if km == nil {
		km = DefaultKeyMap()
	}
	return &keyboardState{keyMap: km, pressed: make(map[string]Binding)}
}

// handle records a key change and reports whether the key is bound.
func (k *keyboardState) handle(key string, down bool) bool {
	key = normalizeKey(key)
	b, ok := k.keyMap[key]
	if !ok {
		return false
	}
	if down {
		k.pressed[key] = b
	} else {
		delete(k.pressed, key)
	}
	return true
}

func (k *keyboardState) state() feedback.ControllerState {
	state := feedback.NewControllerState()
	var axes [axisCount]int32

	for _, b := range k.pressed {
		switch {
		case b.Dir != 0:
			axes[b.Axis] += int32(b.Dir) * feedback.KeyboardAxisMax
		case b.Button == feedback.ButtonL2:
			state.L2 = 0xff
		case b.Button == feedback.ButtonR2:
			state.R2 = 0xff
		default:
			state.Buttons |= b.Button
		}
	}

	state.LeftX = clampKeyboardAxis(axes[AxisLeftX])
	state.LeftY = clampKeyboardAxis(axes[AxisLeftY])
	state.RightX = clampKeyboardAxis(axes[AxisRightX])
	state.RightY = clampKeyboardAxis(axes[AxisRightY])
	return state
}

// clampKeyboardAxis keeps several keys bound to one direction at full tilt.
func clampKeyboardAxis(v int32) int16 {
	return int16(max(-feedback.KeyboardAxisMax, min(v, feedback.KeyboardAxisMax)))
}

// touchTracker assigns console touch IDs to pointer contacts
type touchTracker struct {
	nextID   uint8
	pointers [feedback.TouchesMax]int
	touches  [feedback.TouchesMax]feedback.Touch
}

func newTouchTracker() *touchTracker {
	t := &touchTracker{}
	for i := range t.touches {
		t.touches[i].ID = feedback.TouchNone
		t.pointers[i] = -1
	}
	return t
}

// handle updates the contact of pointer and returns the slot it occupies,
// or -1 when all slots are in use or the pointer is unknown.
func (t *touchTracker) handle(pointer int, x, y uint16, down bool) int {
	slot := -1
	for i, p := range t.pointers {
		if p == pointer && t.touches[i].Active() {
			slot = i
			break
		}
	}

	if !down {
		if slot >= 0 {
			t.touches[slot].ID = feedback.TouchNone
			t.pointers[slot] = -1
		}
		return slot
	}

	if slot < 0 {
		for i := range t.touches {
			if !t.touches[i].Active() {
				slot = i
				t.pointers[i] = pointer
				t.touches[i].ID = int8(t.nextID & 0x7f)
				t.nextID = (t.nextID + 1) & 0x7f
				break
			}
		}
		if slot < 0 {
			return -1
		}
	}

	t.touches[slot].X = min(x, 0xfff)
	t.touches[slot].Y = min(y, 0xfff)
	return slot
}
