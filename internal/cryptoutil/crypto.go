// Package cryptoutil implements the envelope-encryption kernel: a
// process-global master key wraps per-room keys, and per-room keys seal
// individual message bodies. Every operation is AES-256-GCM with a random
// 96-bit nonce and empty associated data.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"sealedchat/internal/apperr"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

// DecryptionFailedSentinel is substituted for message plaintext during
// archival when a message fails to decrypt, so the archive still completes.
const DecryptionFailedSentinel = "[DECRYPTION_FAILED]"

// Kernel holds the process-global master key, read-only after startup.
type Kernel struct {
	master []byte
}

// NewKernel validates and wraps a 32-byte master key.
func NewKernel(masterKey []byte) (*Kernel, error) {
	if len(masterKey) != KeySize {
		return nil, apperr.Crypto("master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	return &Kernel{master: masterKey}, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func randomNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// GenerateRoomKey produces a fresh random 256-bit room key.
func GenerateRoomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, apperr.Crypto("failed to generate room key: %v", err)
	}
	return key, nil
}

// WrapRoomKey seals roomKey under the master key. Output is
// nonce(12) || seal(master, nonce, roomKey).
func (k *Kernel) WrapRoomKey(roomKey []byte) ([]byte, error) {
	aead, err := newAESGCM(k.master)
	if err != nil {
		return nil, apperr.Crypto("failed to init master AEAD: %v", err)
	}
	nonce, err := randomNonce()
	if err != nil {
		return nil, apperr.Crypto("failed to generate nonce: %v", err)
	}
	sealed := aead.Seal(nil, nonce, roomKey, nil)
	return append(nonce, sealed...), nil
}

// UnwrapRoomKey is the inverse of WrapRoomKey.
func (k *Kernel) UnwrapRoomKey(wrapped []byte) ([]byte, error) {
	if len(wrapped) < NonceSize {
		return nil, apperr.Crypto("wrapped room key truncated")
	}
	aead, err := newAESGCM(k.master)
	if err != nil {
		return nil, apperr.Crypto("failed to init master AEAD: %v", err)
	}
	nonce, ciphertext := wrapped[:NonceSize], wrapped[NonceSize:]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperr.Crypto("failed to unwrap room key: %v", err)
	}
	return plain, nil
}

// EncryptMessage seals plaintext under roomKey, returning ciphertext, nonce,
// and tag as three separate byte slices (ciphertext excludes the trailing
// 16-byte GCM tag, which is stored separately).
func EncryptMessage(roomKey []byte, plaintext string) (ct, nonce, tag []byte, err error) {
	aead, err := newAESGCM(roomKey)
	if err != nil {
		return nil, nil, nil, apperr.Crypto("failed to init room AEAD: %v", err)
	}
	n, err := randomNonce()
	if err != nil {
		return nil, nil, nil, apperr.Crypto("failed to generate nonce: %v", err)
	}
	sealed := aead.Seal(nil, n, []byte(plaintext), nil)
	if len(sealed) < TagSize {
		return nil, nil, nil, apperr.Crypto("sealed output shorter than tag size")
	}
	split := len(sealed) - TagSize
	return sealed[:split], n, sealed[split:], nil
}

// DecryptMessage reassembles ciphertext||tag and opens it under roomKey.
func DecryptMessage(roomKey, ct, nonce, tag []byte) (string, error) {
	aead, err := newAESGCM(roomKey)
	if err != nil {
		return "", apperr.Crypto("failed to init room AEAD: %v", err)
	}
	full := make([]byte, 0, len(ct)+len(tag))
	full = append(full, ct...)
	full = append(full, tag...)
	plain, err := aead.Open(nil, nonce, full, nil)
	if err != nil {
		return "", apperr.Crypto("failed to decrypt message: %v", err)
	}
	return string(plain), nil
}

// DecryptMessageForArchive is DecryptMessage with a usable body on failure:
// on AEAD failure it returns the sentinel together with the error, so the
// caller can log the failure and an archival pass still completes.
func DecryptMessageForArchive(roomKey, ct, nonce, tag []byte) (string, error) {
	plain, err := DecryptMessage(roomKey, ct, nonce, tag)
	if err != nil {
		return DecryptionFailedSentinel, err
	}
	return plain, nil
}
