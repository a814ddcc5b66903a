package compliance

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// kekSalt is the fixed salt used to derive a KEK from a passphrase file.
// A per-deployment random salt is the stronger design, but it would need
// its own durable storage slot, which the key file does not provide; a
// future KMS-backed KEK loader replaces this entirely.
var kekSalt = []byte("contextbuilder-kek-v1")

const kekIterations = 100000
const kekKeyLen = 32

// LoadKEK loads a key-encryption-key from path (spec.md §4.11 "KEK loaded
// from a key file/KMS path"). A 32-byte raw key file is used as-is;
// anything else is treated as a passphrase and stretched into a 32-byte
// key via PBKDF2-SHA256.
func LoadKEK(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compliance: reading KEK file %s: %w", path, err)
	}
	if len(data) == kekKeyLen {
		return data, nil
	}
	passphrase := strings.TrimSpace(string(data))
	return pbkdf2.Key([]byte(passphrase), kekSalt, kekIterations, kekKeyLen, sha256.New), nil
}

// wrapDEK encrypts dek with kek via AES-256-GCM, returning (nonce, ciphertext).
func wrapDEK(kek, dek []byte) (nonce, wrapped []byte, err error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	wrapped = gcm.Seal(nil, nonce, dek, nil)
	return nonce, wrapped, nil
}

// unwrapDEK reverses wrapDEK.
func unwrapDEK(kek, nonce, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, wrapped, nil)
}

// sealWithDEK encrypts plaintext with a fresh random DEK via AES-256-GCM,
// returning the encrypted envelope: wrapped_dek || dek_nonce || data_nonce
// || ciphertext_with_tag (spec.md §4.11 wire format, pre-base64).
func sealWithDEK(kek, plaintext []byte) ([]byte, error) {
	dek := make([]byte, kekKeyLen)
	if _, err := rand.Read(dek); err != nil {
		return nil, err
	}

	dekNonce, wrappedDEK, err := wrapDEK(kek, dek)
	if err != nil {
		return nil, fmt.Errorf("compliance: wrapping DEK: %w", err)
	}

	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	dataNonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(dataNonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, dataNonce, plaintext, nil)

	envelope := make([]byte, 0, len(wrappedDEK)+len(dekNonce)+len(dataNonce)+len(ciphertext))
	envelope = append(envelope, wrappedDEK...)
	envelope = append(envelope, dekNonce...)
	envelope = append(envelope, dataNonce...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

// openEnvelope reverses sealWithDEK. A tampered ciphertext fails GCM
// authentication on either layer, surfacing as an error here — which the
// caller reports as ledger tamper rather than a generic I/O failure.
func openEnvelope(kek, envelope []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	wrappedDEKSize := kekKeyLen + gcm.Overhead()

	if len(envelope) < wrappedDEKSize+nonceSize+nonceSize {
		return nil, fmt.Errorf("compliance: envelope too short")
	}

	wrappedDEK := envelope[:wrappedDEKSize]
	rest := envelope[wrappedDEKSize:]
	dekNonce := rest[:nonceSize]
	rest = rest[nonceSize:]
	dataNonce := rest[:nonceSize]
	ciphertext := rest[nonceSize:]

	dek, err := unwrapDEK(kek, dekNonce, wrappedDEK)
	if err != nil {
		return nil, fmt.Errorf("compliance: unwrapping DEK: %w", err)
	}

	dataBlock, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	dataGCM, err := cipher.NewGCM(dataBlock)
	if err != nil {
		return nil, err
	}
	return dataGCM.Open(nil, dataNonce, ciphertext, nil)
}
