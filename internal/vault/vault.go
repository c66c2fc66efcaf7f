// Package vault encrypts credential bundles before they are persisted and
// decrypts them on read. It performs no I/O and is safe for concurrent use.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Algorithm identifies the sealed format. It is persisted alongside the
// ciphertext and must remain stable so stored connections stay decryptable.
const Algorithm = "aes-256-gcm"

// ErrDecryption marks any failure to recover a bundle from its sealed form:
// wrong key, tampered IV/ciphertext, or malformed plaintext.
var ErrDecryption = errors.New("credential decryption failed")

// EncryptedCredential is the persisted form of a bundle.
type EncryptedCredential struct {
	Encrypted string `json:"encrypted"` // hex ciphertext (includes GCM tag)
	IV        string `json:"iv"`        // hex nonce, fresh per encryption
	Algorithm string `json:"algorithm"`
}

// Vault seals and opens credential bundles with a process-wide key.
type Vault struct {
	aead cipher.AEAD
}

// New derives the AES-256 key from the configured secret. The key is
// mandatory: generating a throwaway key here would make every previously
// stored credential permanently undecryptable after a restart.
func New(key string) (*Vault, error) {
	if key == "" {
		return nil, errors.New("vault: encryption key is required")
	}
	h := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(h[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals a bundle with a fresh random nonce. The bundle is serialized
// as a JSON object of string fields, so field order never affects the
// logical round-trip.
func (v *Vault) Encrypt(bundle map[string]string) (EncryptedCredential, error) {
	plain, err := json.Marshal(bundle)
	if err != nil {
		return EncryptedCredential{}, err
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedCredential{}, err
	}
	ct := v.aead.Seal(nil, nonce, plain, nil)
	return EncryptedCredential{
		Encrypted: hex.EncodeToString(ct),
		IV:        hex.EncodeToString(nonce),
		Algorithm: Algorithm,
	}, nil
}

// Decrypt opens a sealed credential. Any integrity or format failure is
// reported as ErrDecryption so operators can distinguish key misconfiguration
// from other faults.
func (v *Vault) Decrypt(enc EncryptedCredential) (map[string]string, error) {
	if enc.Algorithm != Algorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrDecryption, enc.Algorithm)
	}
	nonce, err := hex.DecodeString(enc.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv encoding", ErrDecryption)
	}
	if len(nonce) != v.aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad iv length", ErrDecryption)
	}
	ct, err := hex.DecodeString(enc.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding", ErrDecryption)
	}
	plain, err := v.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	var bundle map[string]string
	if err := json.Unmarshal(plain, &bundle); err != nil {
		return nil, fmt.Errorf("%w: malformed bundle", ErrDecryption)
	}
	return bundle, nil
}
