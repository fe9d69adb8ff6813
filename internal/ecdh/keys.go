package ecdh

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/zalo/remoteplay/internal/errs"
)

// KeySize is the AES-128 key length used for each stream direction
const KeySize = 16

const sessionKeyInfo = "remoteplay session keys"

// SessionKeys holds the directional stream keys derived from a shared secret.
type SessionKeys struct {
	ClientToHost [KeySize]byte
	HostToClient [KeySize]byte
}

// DeriveSessionKeys expands secret into directional keys, salted with the
// session morning.
func DeriveSessionKeys(secret [SecretSize]byte, morning []byte) (SessionKeys, error) {
	var keys SessionKeys

	r := hkdf.New(sha256.New, secret[:], morning, []byte(sessionKeyInfo))
	if _, err := io.ReadFull(r, keys.ClientToHost[:]); err != nil {
		return SessionKeys{}, errs.E(errs.Crypto, "session keys", err)
	}
	if _, err := io.ReadFull(r, keys.HostToClient[:]); err != nil {
		return SessionKeys{}, errs.E(errs.Crypto, "session keys", err)
	}

	return keys, nil
}

// Zero clears both keys.
func (k *SessionKeys) Zero() {
	clear(k.ClientToHost[:])
	clear(k.HostToClient[:])
}
