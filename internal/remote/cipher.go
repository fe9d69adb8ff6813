package remote

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/zalo/remoteplay/internal/protocol"
)

var (
	// ErrDecryptionFailed indicates a message failed authentication
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrReplay indicates a sequence number that did not increase
	ErrReplay = errors.New("sequence number replayed")
	// ErrShortMessage indicates a message without header or tag
	ErrShortMessage = errors.New("message too short")
)

// headerSize is the type byte plus the sequence number
const headerSize = 1 + protocol.SeqSize

// frameCipher seals messages of one stream direction. Each message carries
// its sequence number in clear; the nonce is the direction byte, three zero
// bytes and the sequence number.
type frameCipher struct {
	aead cipher.AEAD
	dir  byte

	seq uint64
}

func newFrameCipher(key []byte, dir byte) (*frameCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &frameCipher{aead: gcm, dir: dir}, nil
}

func (c *frameCipher) nonce(seq uint64) []byte {
	nonce := make([]byte, c.aead.NonceSize())
	nonce[0] = c.dir
	protocol.ByteOrder.PutUint64(nonce[4:], seq)
	return nonce
}

// seal encrypts payload as the next message of type t.
func (c *frameCipher) seal(t protocol.MsgType, payload []byte) []byte {
	seq := c.seq
	c.seq++

	msg := make([]byte, headerSize, headerSize+len(payload)+c.aead.Overhead())
	msg[0] = byte(t)
	protocol.ByteOrder.PutUint64(msg[1:], seq)
	return c.aead.Seal(msg, c.nonce(seq), payload, msg[:headerSize])
}

// open authenticates and decrypts msg. Sequence numbers must strictly increase.
func (c *frameCipher) open(msg []byte) (protocol.MsgType, []byte, error) {
	if len(msg) < headerSize+c.aead.Overhead() {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(msg))
	}

	t := protocol.MsgType(msg[0])
	seq := protocol.ByteOrder.Uint64(msg[1:headerSize])
	if seq < c.seq {
		return t, nil, fmt.Errorf("%w: got %d, want at least %d", ErrReplay, seq, c.seq)
	}

	plaintext, err := c.aead.Open(nil, c.nonce(seq), msg[headerSize:], msg[:headerSize])
	if err != nil {
		return t, nil, ErrDecryptionFailed
	}

	c.seq = seq + 1
	return t, plaintext, nil
}
