// Package credential implements the MLS basic credential used to bind a
// group member to their Nostr identity public key.
package credential

import (
	"encoding/hex"
	"strings"

	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// Type enumerates the MLS credential types this implementation recognizes.
// Only "basic" is accepted; anything else is rejected per
// marmoterr.UnsupportedCredential.
type Type uint16

const (
	TypeBasic Type = 1
)

// Credential binds a member's identity to their 32-byte Nostr public key.
// The Identity field always holds the raw 32 bytes; String() renders it as
// lowercase hex, matching how the key is carried on the wire elsewhere
// (key package tags, Marmot Group Data admin_pubkeys).
type Credential struct {
	Type     Type
	Identity [32]byte
}

// CreateCredential builds a basic credential from a public key given as
// hex. It accepts exactly 64 lowercase-or-uppercase hex characters; callers
// holding raw bytes should use CreateCredentialFromBytes instead.
//
// The legacy form some older key package producers emit (the identity
// stored as a UTF-8 string of hex digits, 64 bytes long, rather than as the
// decoded 32 bytes) is not accepted here; CreateCredentialFromBytes
// recognizes it and re-decodes it.
func CreateCredential(pubkeyHex string) (Credential, error) {
	pubkeyHex = strings.TrimSpace(pubkeyHex)
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil || len(raw) != 32 {
		return Credential{}, marmoterr.InvalidPublicKey("want 64 hex characters encoding 32 bytes")
	}
	var id [32]byte
	copy(id[:], raw)
	return Credential{Type: TypeBasic, Identity: id}, nil
}

// CreateCredentialFromBytes builds a basic credential directly from a
// 32-byte identity, also accepting the legacy double-encoded form noted on
// CreateCredential.
func CreateCredentialFromBytes(identity []byte) (Credential, error) {
	switch len(identity) {
	case 32:
		var id [32]byte
		copy(id[:], identity)
		return Credential{Type: TypeBasic, Identity: id}, nil
	case 64:
		if raw, err := hex.DecodeString(string(identity)); err == nil && len(raw) == 32 {
			var id [32]byte
			copy(id[:], raw)
			return Credential{Type: TypeBasic, Identity: id}, nil
		}
		return Credential{}, marmoterr.InvalidPublicKey("64-byte identity is not hex-encoded 32 bytes")
	default:
		return Credential{}, marmoterr.InvalidPublicKey("identity must be 32 raw bytes or 64 hex characters")
	}
}

// GetCredentialPubkey returns the lowercase-hex Nostr public key this
// credential asserts, rejecting any credential type other than basic.
func GetCredentialPubkey(c Credential) (string, error) {
	if c.Type != TypeBasic {
		return "", marmoterr.UnsupportedCredential(credTypeName(c.Type))
	}
	return hex.EncodeToString(c.Identity[:]), nil
}

func credTypeName(t Type) string {
	switch t {
	case TypeBasic:
		return "basic"
	default:
		return "unknown"
	}
}
