// Package identity provides the default transport.Signer: a Nostr
// secp256k1 keypair, generated and signed via nbd-wtf/go-nostr, with
// passphrase-protected at-rest storage in the spirit of NIP-49 (scrypt to
// stretch the passphrase, AES-256-GCM to seal the secret key). This is
// distinct from the MLS leaf signature key (internal/mls, persisted via
// internal/crypto's Ed25519/PKCS8 helpers): the identity key is the
// account's long-lived Nostr pubkey, while the leaf key authenticates one
// member within one group's MLS state.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/crypto/scrypt"

	"github.com/marmot-go/marmotgroup/internal/crypto"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// Identity is the default transport.Signer implementation.
type Identity struct {
	secretKeyHex string
	publicKeyHex string
}

// Generate creates a fresh Nostr identity keypair.
func Generate() (*Identity, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &Identity{secretKeyHex: sk, publicKeyHex: pk}, nil
}

// FromSecretKey wraps an existing hex-encoded secp256k1 secret key.
func FromSecretKey(secretKeyHex string) (*Identity, error) {
	pk, err := nostr.GetPublicKey(secretKeyHex)
	if err != nil {
		return nil, marmoterr.InvalidPublicKey("secret key does not derive a valid public key")
	}
	return &Identity{secretKeyHex: secretKeyHex, publicKeyHex: pk}, nil
}

// GetPublicKey implements transport.Signer.
func (id *Identity) GetPublicKey() string { return id.publicKeyHex }

// SecretKeyHex exposes the raw secret key for callers that persist it
// themselves outside of Seal (e.g. an unencrypted at-rest record when the
// caller opted out of a passphrase).
func (id *Identity) SecretKeyHex() string { return id.secretKeyHex }

// SignEvent implements transport.Signer: it copies draft, stamps its
// pubkey, and signs it with the identity's secret key.
func (id *Identity) SignEvent(ctx context.Context, draft *nostr.Event) (*nostr.Event, error) {
	signed := *draft
	signed.PubKey = id.publicKeyHex
	if err := signed.Sign(id.secretKeyHex); err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	return &signed, nil
}

// sealedIdentity is the at-rest encoding written by Seal/opened by Open.
type sealedIdentity struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16

	// storageKeyLabel distinguishes the identity secret key from any
	// other secret DeriveStorageKey might one day protect under the same
	// scrypt-stretched master secret (e.g. a key package's private half).
	storageKeyLabel = "identity-secret-key"
)

// Seal encrypts the identity's secret key under a passphrase, scrypt-
// stretched per NIP-49, returning a JSON blob suitable for storage. The
// scrypt output is a master secret, not used directly as the AES key:
// crypto.DeriveStorageKey derives the actual sealing key from it via HKDF.
func Seal(id *Identity, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	master, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	key := crypto.DeriveStorageKey(master, storageKeyLabel, 0)
	nonce, ct, err := crypto.AESGCMEncrypt(key, []byte(id.secretKeyHex))
	if err != nil {
		return nil, fmt.Errorf("seal secret key: %w", err)
	}
	blob := sealedIdentity{
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ct),
	}
	return json.Marshal(blob)
}

// Open reverses Seal.
func Open(sealed []byte, passphrase []byte) (*Identity, error) {
	var blob sealedIdentity
	if err := json.Unmarshal(sealed, &blob); err != nil {
		return nil, fmt.Errorf("decode sealed identity: %w", err)
	}
	salt, err := hex.DecodeString(blob.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := hex.DecodeString(blob.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := hex.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	master, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	key := crypto.DeriveStorageKey(master, storageKeyLabel, 0)
	plaintext, err := crypto.AESGCMDecrypt(key, nonce, ct)
	if err != nil {
		return nil, fmt.Errorf("unseal secret key: %w", err)
	}
	return FromSecretKey(string(plaintext))
}
