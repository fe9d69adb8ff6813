package remote

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/zalo/remoteplay/internal/ecdh"
	"github.com/zalo/remoteplay/internal/event"
	"github.com/zalo/remoteplay/internal/protocol"
)

// HandshakeKeySize is the length of the key signing public keys
const HandshakeKeySize = 16

// HandshakeKey derives the key both sides use to sign their public keys.
func HandshakeKey(morning, registKey [16]byte) [HandshakeKeySize]byte {
	mac := hmac.New(sha256.New, morning[:])
	mac.Write(registKey[:])
	sum := mac.Sum(nil)

	var key [HandshakeKeySize]byte
	copy(key[:], sum)
	clear(sum)
	return key
}

// QuitError is returned by Start when the console refuses the session
type QuitError struct {
	Reason event.QuitReason
	Text   string
}

func (e *QuitError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("console refused session: %s", e.Reason)
	}
	return fmt.Sprintf("console refused session: %s: %s", e.Reason, e.Text)
}

// sessionCiphers runs the key agreement for a received ack and returns the
// send and receive ciphers of the client side.
func sessionCiphers(kx *ecdh.ECDH, ack *protocol.HelloAck, handshakeKey []byte, morning [16]byte) (send, recv *frameCipher, err error) {
	secret, err := kx.DeriveSecret(ack.PublicKey, handshakeKey, ack.Signature)
	if err != nil {
		return nil, nil, err
	}
	defer clear(secret[:])

	keys, err := ecdh.DeriveSessionKeys(secret, morning[:])
	if err != nil {
		return nil, nil, err
	}
	defer keys.Zero()

	send, err = newFrameCipher(keys.ClientToHost[:], protocol.DirClientToHost)
	if err != nil {
		return nil, nil, err
	}
	recv, err = newFrameCipher(keys.HostToClient[:], protocol.DirHostToClient)
	if err != nil {
		return nil, nil, err
	}
	return send, recv, nil
}
