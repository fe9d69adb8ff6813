package session

import (
	"fmt"
	"strings"

	"github.com/zalo/remoteplay/internal/feedback"
)

// Axis is an analog value of the controller
type Axis uint8

const (
	AxisL2 Axis = iota
	AxisR2
	AxisLeftX
	AxisLeftY
	AxisRightX
	AxisRightY
	axisCount
)

var axisNames = map[Axis]string{
	AxisL2:     "l2",
	AxisR2:     "r2",
	AxisLeftX:  "left_x",
	AxisLeftY:  "left_y",
	AxisRightX: "right_x",
	AxisRightY: "right_y",
}

func (a Axis) String() string {
	if name, ok := axisNames[a]; ok {
		return name
	}
	return fmt.Sprintf("axis(%d)", uint8(a))
}

// Binding is what a key or mouse button drives: a button, or one direction
// of a stick axis.
type Binding struct {
	Button feedback.Button
	Axis   Axis
	// Dir is +1 or -1 for stick bindings and 0 for buttons.
	Dir int8
}

func (b Binding) String() string {
	if b.Dir == 0 {
		return b.Button.String()
	}
	if b.Dir > 0 {
		return b.Axis.String() + "+"
	}
	return b.Axis.String() + "-"
}

// ParseBinding parses a button name such as "cross" or a stick direction
// such as "left_x+".
func ParseBinding(name string) (Binding, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if n := len(name); n > 1 && (name[n-1] == '+' || name[n-1] == '-') {
		dir := int8(1)
		if name[n-1] == '-' {
			dir = -1
		}
		for a, an := range axisNames {
			if an == name[:n-1] && a >= AxisLeftX {
				return Binding{Axis: a, Dir: dir}, nil
			}
		}
		return Binding{}, fmt.Errorf("unknown stick direction %q", name)
	}

	b, err := feedback.ParseButton(name)
	if err != nil {
		return Binding{}, err
	}
	return Binding{Button: b}, nil
}

// KeyMap maps lower-case key names, and mouse buttons as "mouse_<name>",
// to bindings.
type KeyMap map[string]Binding

// DefaultKeyMap returns the built-in keyboard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		"left":      {Button: feedback.ButtonDPadLeft},
		"right":     {Button: feedback.ButtonDPadRight},
		"up":        {Button: feedback.ButtonDPadUp},
		"down":      {Button: feedback.ButtonDPadDown},
		"return":    {Button: feedback.ButtonCross},
		"backspace": {Button: feedback.ButtonMoon},
		"escape":    {Button: feedback.ButtonPS},
		"t":         {Button: feedback.ButtonTouchpad},
	}
}

// ParseKeyMap builds a key map from key name to binding name pairs. Keys
// not listed keep their default binding; binding to "none" removes one.
func ParseKeyMap(bindings map[string]string) (KeyMap, error) {
	km := DefaultKeyMap()
	for key, target := range bindings {
		key = normalizeKey(key)
		if strings.EqualFold(strings.TrimSpace(target), "none") {
			delete(km, key)
			continue
		}
		b, err := ParseBinding(target)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		km[key] = b
	}
	return km, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// MouseKey returns the key map name of a mouse button.
func MouseKey(button string) string {
	return "mouse_" + normalizeKey(button)
}
