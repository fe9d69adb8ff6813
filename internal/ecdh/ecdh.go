// Package ecdh performs the authenticated key exchange of the remote play handshake.
//
// Each side publishes an ephemeral secp256k1 public key signed with
// HMAC-SHA256 under the pre-shared handshake key. The shared secret is the
// 32-byte x coordinate of the ECDH product. No network I/O happens here.
package ecdh

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zalo/remoteplay/internal/errs"
)

// SecretSize is the length of the derived shared secret
const SecretSize = 32

// PublicKeySize is the length of an uncompressed public key
const PublicKeySize = 65

var (
	// ErrSignatureMismatch indicates the remote public key was not signed with the handshake key
	ErrSignatureMismatch = errors.New("remote key signature mismatch")
	// ErrDerive indicates the shared secret could not be computed
	ErrDerive = errors.New("shared secret derivation failed")
	// ErrKeyMismatch indicates an injected public key does not belong to the private key
	ErrKeyMismatch = errors.New("public key does not match private key")
	// ErrClosed indicates the key pair was already released
	ErrClosed = errors.New("key exchange closed")
)

// ECDH holds one local key pair.
type ECDH struct {
	priv *secp256k1.PrivateKey
}

// New generates a fresh key pair from r, or from crypto/rand when r is nil.
func New(r io.Reader) (*ECDH, error) {
	if r == nil {
		r = rand.Reader
	}

	priv, err := secp256k1.GeneratePrivateKeyFromRand(r)
	if err != nil {
		return nil, errs.E(errs.Crypto, "ecdh init", err)
	}

	return &ECDH{priv: priv}, nil
}

// SetLocalKey replaces the key pair with a previously established one.
func (e *ECDH) SetLocalKey(privateKey, publicKey []byte) error {
	if len(privateKey) != secp256k1.PrivKeyBytesLen {
		return errs.E(errs.Crypto, "ecdh set local key", ErrKeyMismatch)
	}

	priv := secp256k1.PrivKeyFromBytes(privateKey)
	if !bytes.Equal(priv.PubKey().SerializeUncompressed(), publicKey) {
		priv.Zero()
		return errs.E(errs.Crypto, "ecdh set local key", ErrKeyMismatch)
	}

	if e.priv != nil {
		e.priv.Zero()
	}
	e.priv = priv
	return nil
}

// LocalPublicKey returns the uncompressed local public key and its signature
// under handshakeKey.
func (e *ECDH) LocalPublicKey(handshakeKey []byte) (pub, sig []byte, err error) {
	if e.priv == nil {
		return nil, nil, errs.E(errs.Crypto, "ecdh local key", ErrClosed)
	}

	pub = e.priv.PubKey().SerializeUncompressed()
	return pub, Sign(handshakeKey, pub), nil
}

// DeriveSecret checks remoteSig over remotePub and computes the shared secret.
func (e *ECDH) DeriveSecret(remotePub, handshakeKey, remoteSig []byte) ([SecretSize]byte, error) {
	var secret [SecretSize]byte

	if e.priv == nil {
		return secret, errs.E(errs.Crypto, "ecdh derive", ErrClosed)
	}

	if !hmac.Equal(Sign(handshakeKey, remotePub), remoteSig) {
		return secret, errs.E(errs.Crypto, "ecdh verify", ErrSignatureMismatch)
	}

	pub, err := secp256k1.ParsePubKey(remotePub)
	if err != nil {
		return secret, errs.E(errs.Crypto, "ecdh derive", errors.Join(ErrDerive, err))
	}

	shared := secp256k1.GenerateSharedSecret(e.priv, pub)
	if len(shared) != SecretSize {
		return secret, errs.E(errs.Crypto, "ecdh derive", ErrDerive)
	}
	copy(secret[:], shared)
	clear(shared)

	return secret, nil
}

// PrivateKey returns a copy of the local private scalar for later resumption.
func (e *ECDH) PrivateKey() []byte {
	if e.priv == nil {
		return nil
	}
	return e.priv.Serialize()
}

// Close zeroes the private key.
func (e *ECDH) Close() {
	if e.priv != nil {
		e.priv.Zero()
		e.priv = nil
	}
}

// Sign computes the handshake signature of a public key.
func Sign(handshakeKey, pub []byte) []byte {
	mac := hmac.New(sha256.New, handshakeKey)
	mac.Write(pub)
	return mac.Sum(nil)
}
