package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	sealKeyLen = 32
	sealIVLen  = 12
	sealTagLen = 16

	// scrypt cost parameters; rows sealed with other parameters will not open.
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	// DefaultSealSalt is the key-derivation salt used when none is configured.
	DefaultSealSalt = "salt"
)

// ErrSealBroken means a value had the sealed layout but failed to decrypt.
var ErrSealBroken = errors.New("storage: sealed value failed authentication")

// Sealer encrypts report payloads at rest with AES-256-GCM. Sealed values
// are "iv:tag:ciphertext" in hex.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key from secret with scrypt.
func NewSealer(secret, salt string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("storage: empty sealing secret")
	}
	if salt == "" {
		salt = DefaultSealSalt
	}
	key, err := scrypt.Key([]byte(secret), []byte(salt), scryptN, scryptR, scryptP, sealKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, sealIVLen)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plain with a fresh IV. A nil Sealer returns plain as is.
func (s *Sealer) Seal(plain []byte) (string, error) {
	if s == nil {
		return string(plain), nil
	}
	iv := make([]byte, sealIVLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	out := s.aead.Seal(nil, iv, plain, nil)
	body, tag := out[:len(out)-sealTagLen], out[len(out)-sealTagLen:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(body), nil
}

// Open reverses Seal. Values not in the sealed layout are legacy
// plaintext and come back unchanged.
func (s *Sealer) Open(value string) ([]byte, error) {
	iv, tag, body, ok := splitSealed(value)
	if !ok {
		return []byte(value), nil
	}
	if s == nil {
		return nil, fmt.Errorf("%w: no sealing key configured", ErrSealBroken)
	}
	plain, err := s.aead.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return nil, ErrSealBroken
	}
	return plain, nil
}

func splitSealed(value string) (iv, tag, body []byte, ok bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, nil, nil, false
	}
	var err error
	if iv, err = hex.DecodeString(parts[0]); err != nil || len(iv) != sealIVLen {
		return nil, nil, nil, false
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != sealTagLen {
		return nil, nil, nil, false
	}
	if body, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, false
	}
	return iv, tag, body, true
}
