package crypto

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

const (
	// PassphraseEnv is the environment variable that supplies the MLS
	// leaf signing key's passphrase, when one isn't passed explicitly.
	PassphraseEnv = "MARMOTGROUP_PASSPHRASE"
)

// GenerateKeypair generates an Ed25519 key pair, used as an MLS group
// member's leaf signature keypair (distinct from the Nostr transport
// identity key managed by internal/identity).
func GenerateKeypair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("ed25519 keygen: %w", err)
	}
	return priv, pub, nil
}

// PrivateKeyToPEM serializes a private key to PEM (PKCS8), optionally encrypted.
func PrivateKeyToPEM(key ed25519.PrivateKey, passphrase []byte) (string, error) {
	if len(passphrase) > 0 {
		pemBlock, err := pkcs8.MarshalPrivateKey(key, passphrase, nil)
		if err != nil {
			return "", fmt.Errorf("marshal encrypted private key: %w", err)
		}
		return string(pem.EncodeToMemory(&pem.Block{
			Type:  "ENCRYPTED PRIVATE KEY",
			Bytes: pemBlock,
		})), nil
	}
	pkcs8Bytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: pkcs8Bytes,
	})), nil
}

// LoadPrivateKey loads a private key from PEM.
// If passphrase is nil, tries the MARMOTGROUP_PASSPHRASE environment variable.
// Falls back to no password for unencrypted keys.
func LoadPrivateKey(pemStr string, passphrase []byte) (ed25519.PrivateKey, error) {
	if passphrase == nil {
		passphrase = getPassphraseFromEnv()
	}

	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "ENCRYPTED PRIVATE KEY" {
		key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, passphrase)
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %w", err)
		}
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not Ed25519")
		}
		return edKey, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not Ed25519")
	}
	return edKey, nil
}

func getPassphraseFromEnv() []byte {
	val := os.Getenv(PassphraseEnv)
	if val != "" {
		return []byte(val)
	}
	return nil
}
