// Package giftwrap provides the default welcome.GiftWrapper: NIP-59
// gift-wrap construction/unwrapping over nbd-wtf/go-nostr's nip59 package,
// using a fresh ephemeral signing key per seal layer so neither the
// outer gift-wrap event nor the inner seal reveals the sender's identity
// to anyone but the intended recipient.
package giftwrap

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
	"github.com/nbd-wtf/go-nostr/nip59"
)

// Wrapper is the default welcome.GiftWrapper. sk is the long-lived Nostr
// identity secret key used to derive the NIP-44 conversation key with
// each recipient; the gift-wrap's outer event is still signed by a
// one-time ephemeral key nip59.GiftWrap generates internally, not by sk.
type Wrapper struct {
	secretKeyHex string
}

// NewWrapper returns a Wrapper that seals/opens gift wraps using sk's
// NIP-44 conversation keys.
func NewWrapper(secretKeyHex string) *Wrapper {
	return &Wrapper{secretKeyHex: secretKeyHex}
}

// Wrap seals rumor for recipientPubkey.
func (w *Wrapper) Wrap(ctx context.Context, rumor *nostr.Event, recipientPubkey string) (*nostr.Event, error) {
	encrypt := func(plaintext, theirPubkey string) (string, error) {
		key, err := nip44.GenerateConversationKey(theirPubkey, w.secretKeyHex)
		if err != nil {
			return "", fmt.Errorf("derive conversation key: %w", err)
		}
		return nip44.Encrypt(plaintext, key)
	}
	wrapped, err := nip59.GiftWrap(*rumor, recipientPubkey, encrypt)
	if err != nil {
		return nil, fmt.Errorf("gift wrap: %w", err)
	}
	return &wrapped, nil
}

// Unwrap reverses Wrap.
func (w *Wrapper) Unwrap(ctx context.Context, giftWrapEvent *nostr.Event) (*nostr.Event, error) {
	decrypt := func(theirPubkey, ciphertext string) (string, error) {
		key, err := nip44.GenerateConversationKey(theirPubkey, w.secretKeyHex)
		if err != nil {
			return "", fmt.Errorf("derive conversation key: %w", err)
		}
		return nip44.Decrypt(ciphertext, key)
	}
	rumor, err := nip59.GiftUnwrap(*giftWrapEvent, decrypt)
	if err != nil {
		return nil, fmt.Errorf("gift unwrap: %w", err)
	}
	return &rumor, nil
}
