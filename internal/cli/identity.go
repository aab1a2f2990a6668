package cli

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"

	"github.com/marmot-go/marmotgroup/internal/crypto"
	"github.com/marmot-go/marmotgroup/internal/identity"
)

// identityRecord is the at-rest encoding of IdentityFile. When Sealed is
// false the secret key is stored verbatim, matching a passphrase-optional
// workflow; when true, Blob is an identity.Seal envelope.
type identityRecord struct {
	Pubkey       string          `json:"pubkey"`
	Sealed       bool            `json:"sealed"`
	SecretKeyHex string          `json:"secret_key_hex,omitempty"`
	Blob         json.RawMessage `json:"blob,omitempty"`
}

func saveIdentity(paths StatePaths, id *identity.Identity, passphrase []byte) error {
	rec := identityRecord{Pubkey: id.GetPublicKey()}
	if len(passphrase) > 0 {
		blob, err := identity.Seal(id, passphrase)
		if err != nil {
			return fmt.Errorf("seal identity: %w", err)
		}
		rec.Sealed = true
		rec.Blob = blob
	} else {
		rec.SecretKeyHex = id.SecretKeyHex()
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(paths.IdentityFile(), data, 0o600)
}

func loadIdentity(paths StatePaths, passphrase []byte) (*identity.Identity, error) {
	data, err := os.ReadFile(paths.IdentityFile())
	if err != nil {
		return nil, fmt.Errorf("read identity (run keygen first): %w", err)
	}
	var rec identityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if rec.Sealed {
		if passphrase == nil {
			passphrase = passphraseFromEnv()
		}
		return identity.Open(rec.Blob, passphrase)
	}
	return identity.FromSecretKey(rec.SecretKeyHex)
}

// saveLeafKey persists the MLS leaf signature key and init secret
// GenerateKeyPackage produced, so later commands (create, join) can
// reconstruct the same KeyPackage without regenerating it.
func saveLeafKey(paths StatePaths, sigPriv ed25519.PrivateKey, initPriv []byte, passphrase []byte) error {
	pemStr, err := crypto.PrivateKeyToPEM(sigPriv, passphrase)
	if err != nil {
		return fmt.Errorf("encode leaf key: %w", err)
	}
	if err := os.WriteFile(paths.LeafKeyFile(), []byte(pemStr), 0o600); err != nil {
		return err
	}
	return os.WriteFile(paths.InitPrivFile(), initPriv, 0o600)
}

// loadLeafKey reverses saveLeafKey, recomputing the init key's public
// half (a SHA-256 hash, per keypackage.GenerateKeyPackage) rather than
// storing it separately.
func loadLeafKey(paths StatePaths, passphrase []byte) (sigPriv ed25519.PrivateKey, sigPub ed25519.PublicKey, initPriv, initPub []byte, err error) {
	pemData, err := os.ReadFile(paths.LeafKeyFile())
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("read leaf key (run keypackage first): %w", err)
	}
	sigPriv, err = crypto.LoadPrivateKey(string(pemData), passphrase)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load leaf key: %w", err)
	}
	initPriv, err = os.ReadFile(paths.InitPrivFile())
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("read init key: %w", err)
	}
	hash := sha256.Sum256(initPriv)
	return sigPriv, sigPriv.Public().(ed25519.PublicKey), initPriv, hash[:], nil
}

func passphraseFromEnv() []byte {
	if v := os.Getenv(crypto.PassphraseEnv); v != "" {
		return []byte(v)
	}
	return nil
}
