package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("bad length")
	err := E(Construction, "regist key", cause)

	assert.Contains(t, err.Error(), "regist key")
	assert.Contains(t, err.Error(), "construction")
	assert.Contains(t, err.Error(), "bad length")
	assert.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", E(Crypto, "derive", nil), Crypto},
		{"wrapped", fmt.Errorf("session start: %w", E(Protocol, "read", nil)), Protocol},
		{"plain", errors.New("plain"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(E(Device, "audio", nil), Device))
	assert.False(t, IsKind(E(Device, "audio", nil), Crypto))
	assert.False(t, IsKind(nil, KindUnknown))
}

func TestFatal(t *testing.T) {
	assert.True(t, Construction.Fatal())
	assert.True(t, Crypto.Fatal())
	assert.False(t, Protocol.Fatal())
	assert.False(t, Device.Fatal())
	assert.False(t, BufferTooSmall.Fatal())
}
