// Package auth implements the optional password handshake of the control API
// and the sealed stream both ends switch to once it succeeds.
package auth

import (
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

const (
	generatedKeyLen = 16
	keyAlphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	kdfIterations   = 100000
	kdfSalt         = "btkvm/api-key/1"
)

// GenerateKey returns a random password suitable for the key file.
func GenerateKey() (string, error) {
	raw := make([]byte, generatedKeyLen)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for i, b := range raw {
		raw[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(raw), nil
}

// DeriveKey stretches password into the 32 byte handshake key.
func DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("empty password")
	}
	return pbkdf2.Key(sha256.New, password, []byte(kdfSalt), kdfIterations, 32)
}

// directionKeys derives one key per direction so the two sides never seal
// under the same key and counter.
func directionKeys(key, clientNonce, serverNonce []byte) (toServer, toClient []byte) {
	derive := func(label string) []byte {
		h := sha256.New()
		h.Write(key)
		h.Write(clientNonce)
		h.Write(serverNonce)
		h.Write([]byte(label))
		return h.Sum(nil)
	}
	return derive("btkvm/session/c2s"), derive("btkvm/session/s2c")
}
