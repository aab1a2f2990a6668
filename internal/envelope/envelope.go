// Package envelope wraps outgoing MLS wire messages and unwraps incoming
// ones using a key exported from the current MLS epoch, hiding the
// sender's transport identity behind a disjoint ephemeral signing key.
package envelope

import (
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/marmot-go/marmotgroup/internal/marmoterr"
	"github.com/marmot-go/marmotgroup/internal/mls"
	"github.com/marmot-go/marmotgroup/internal/transport"
)

const (
	exporterLabel   = "nostr"
	exporterContext = "nostr"
	exporterLength  = 32
)

// DeriveKey exports the per-epoch symmetric secret every envelope of this
// group's current epoch is encrypted under. A sender and any receiver
// holding an identical state at the same epoch derive the same key.
func DeriveKey(state *mls.ClientState) [32]byte {
	secret := state.ExportSecret(exporterLabel, exporterContext, exporterLength)
	var key [32]byte
	copy(key[:], secret)
	return key
}

// Seal encrypts wireMessage under state's current epoch key and returns a
// signed, draft-free kind-445 event ready to publish: a fresh ephemeral
// keypair signs it, so the receiver learns nothing about the sender's
// identity from the envelope itself.
func Seal(state *mls.ClientState, groupIDHex string, wireMessage []byte) (*nostr.Event, error) {
	key := DeriveKey(state)
	ciphertext, err := nip44.Encrypt(string(wireMessage), key)
	if err != nil {
		return nil, err
	}

	ephemeralSK := nostr.GeneratePrivateKey()
	ephemeralPK, err := nostr.GetPublicKey(ephemeralSK)
	if err != nil {
		return nil, err
	}

	event := &nostr.Event{
		PubKey:    ephemeralPK,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      transport.KindForGroupEvent(),
		Tags:      nostr.Tags{transport.GroupTag(groupIDHex)},
		Content:   ciphertext,
	}
	if err := event.Sign(ephemeralSK); err != nil {
		return nil, err
	}
	return event, nil
}

// Open decrypts event against state's current epoch key. Failure here is
// not necessarily an error condition in the caller's protocol: an event
// whose sender is at a different epoch, or addressed to a cohort this
// reader isn't part of, legitimately fails to decrypt and is surfaced by
// callers (see internal/group's commit resolver) as unreadable rather
// than fatal.
func Open(state *mls.ClientState, event *nostr.Event) ([]byte, error) {
	key := DeriveKey(state)
	plaintext, err := nip44.Decrypt(event.Content, key)
	if err != nil {
		return nil, marmoterr.Unreadable("envelope decrypt failed", err)
	}
	return []byte(plaintext), nil
}
