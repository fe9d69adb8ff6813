package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalo/remoteplay/internal/feedback"
)

func TestParseBinding(t *testing.T) {
	tests := []struct {
		name string
		want Binding
	}{
		{"cross", Binding{Button: feedback.ButtonCross}},
		{" PS ", Binding{Button: feedback.ButtonPS}},
		{"l2", Binding{Button: feedback.ButtonL2}},
		{"left_x+", Binding{Axis: AxisLeftX, Dir: 1}},
		{"right_y-", Binding{Axis: AxisRightY, Dir: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseBinding(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b)
		})
	}

	for _, bad := range []string{"", "circle", "l2+", "left_z-", "+"} {
		_, err := ParseBinding(bad)
		assert.Error(t, err, bad)
	}
}

func TestBindingString(t *testing.T) {
	assert.Equal(t, "dpad_up", Binding{Button: feedback.ButtonDPadUp}.String())
	assert.Equal(t, "left_y-", Binding{Axis: AxisLeftY, Dir: -1}.String())
	assert.Equal(t, "right_x+", Binding{Axis: AxisRightX, Dir: 1}.String())
}

func TestParseKeyMap(t *testing.T) {
	km, err := ParseKeyMap(map[string]string{
		"W":      "left_y-",
		"escape": "none",
		"return": "box",
	})
	require.NoError(t, err)

	assert.Equal(t, Binding{Axis: AxisLeftY, Dir: -1}, km["w"])
	assert.NotContains(t, km, "escape")
	assert.Equal(t, Binding{Button: feedback.ButtonBox}, km["return"])
	assert.Equal(t, Binding{Button: feedback.ButtonDPadLeft}, km["left"])

	_, err = ParseKeyMap(map[string]string{"x": "jump"})
	assert.ErrorContains(t, err, `key "x"`)
}
