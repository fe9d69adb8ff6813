package remote

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalo/remoteplay/internal/protocol"
)

func cipherPair(t *testing.T) (*frameCipher, *frameCipher) {
	key := []byte("0123456789abcdef")
	a, err := newFrameCipher(key, protocol.DirHostToClient)
	require.NoError(t, err)
	b, err := newFrameCipher(key, protocol.DirHostToClient)
	require.NoError(t, err)
	return a, b
}

func TestCipherRoundTrip(t *testing.T) {
	sealer, opener := cipherPair(t)

	for i := 0; i < 3; i++ {
		msg := sealer.seal(protocol.MsgVideoData, []byte{byte(i)})
		assert.Equal(t, byte(protocol.MsgVideoData), msg[0])
		assert.Equal(t, uint64(i), protocol.ByteOrder.Uint64(msg[1:9]))

		typ, payload, err := opener.open(msg)
		require.NoError(t, err)
		assert.Equal(t, protocol.MsgVideoData, typ)
		assert.Equal(t, []byte{byte(i)}, payload)
	}
}

func TestCipherRejectsReplay(t *testing.T) {
	sealer, opener := cipherPair(t)

	first := sealer.seal(protocol.MsgAudioData, nil)
	second := sealer.seal(protocol.MsgAudioData, nil)

	_, _, err := opener.open(second)
	require.NoError(t, err)
	_, _, err = opener.open(first)
	assert.ErrorIs(t, err, ErrReplay)
	_, _, err = opener.open(second)
	assert.ErrorIs(t, err, ErrReplay)
}

func TestCipherAuthenticatesHeader(t *testing.T) {
	sealer, opener := cipherPair(t)

	msg := sealer.seal(protocol.MsgVideoData, []byte("frame"))
	msg[0] = byte(protocol.MsgAudioData)
	_, _, err := opener.open(msg)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, _, err = opener.open(msg[:10])
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestCipherDirectionBound(t *testing.T) {
	key := []byte("0123456789abcdef")
	up, err := newFrameCipher(key, protocol.DirClientToHost)
	require.NoError(t, err)
	down, err := newFrameCipher(key, protocol.DirHostToClient)
	require.NoError(t, err)

	_, _, err = down.open(up.seal(protocol.MsgLoginPIN, []byte("1234")))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCipherBadKey(t *testing.T) {
	_, err := newFrameCipher([]byte("short"), protocol.DirClientToHost)
	assert.Error(t, err)
}

func TestHandshakeKey(t *testing.T) {
	mac := hmac.New(sha256.New, testMorning[:])
	mac.Write(testRegistKey[:])
	want := mac.Sum(nil)[:HandshakeKeySize]

	got := HandshakeKey(testMorning, testRegistKey)
	assert.Equal(t, want, got[:])
	assert.NotEqual(t, got, HandshakeKey(testRegistKey, testMorning))
}
