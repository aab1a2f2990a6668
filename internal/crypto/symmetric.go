package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// AESKeySize is the key size for AES-256.
	AESKeySize = 32
	// IVSize is the GCM recommended nonce size.
	IVSize = 12
	// TagSize is the GCM authentication tag size.
	TagSize = 16
)

// DeriveStorageKey derives an AES-256 key for encrypting a locally-stored
// secret (an identity private key, or a key package's private half) at
// rest, given a master secret (e.g. a passphrase run through scrypt) and a
// label distinguishing what is being protected.
//
// key = HKDF-SHA-256(secret=master, salt=label, info="marmotgroup-storage-key"||counter_be64)
func DeriveStorageKey(master []byte, label string, counter uint64) []byte {
	salt := []byte(label)
	info := make([]byte, len("marmotgroup-storage-key")+8)
	copy(info, "marmotgroup-storage-key")
	binary.BigEndian.PutUint64(info[len("marmotgroup-storage-key"):], counter)

	hkdfReader := hkdf.New(sha256.New, master, salt, info)
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic(fmt.Sprintf("hkdf: %v", err))
	}
	return key
}

// AESGCMEncrypt encrypts plaintext with AES-256-GCM using a random nonce.
// Returns (nonce, ciphertext||tag).
func AESGCMEncrypt(key, plaintext []byte) (nonce, ct []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("gcm: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("random nonce: %w", err)
	}
	ct = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ct, nil
}

// AESGCMDecrypt decrypts ciphertext with AES-256-GCM.
// The ciphertext must include the 16-byte authentication tag appended
// by AESGCMEncrypt.
func AESGCMDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < TagSize {
		return nil, fmt.Errorf("ciphertext too short (missing GCM tag)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm decrypt: %w", err)
	}
	return plaintext, nil
}
