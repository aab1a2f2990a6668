package welcome

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// FakeGiftWrapper is an in-memory GiftWrapper for tests: it carries the
// rumor verbatim (JSON-encoded) inside the outer event's content rather
// than performing real NIP-44 sealing, so tests can exercise the Welcome
// delivery path without a live NIP-59 round trip.
type FakeGiftWrapper struct{}

// NewFakeGiftWrapper returns a FakeGiftWrapper.
func NewFakeGiftWrapper() *FakeGiftWrapper { return &FakeGiftWrapper{} }

func (*FakeGiftWrapper) Wrap(ctx context.Context, rumor *nostr.Event, recipientPubkey string) (*nostr.Event, error) {
	payload, err := json.Marshal(rumor)
	if err != nil {
		return nil, fmt.Errorf("marshal rumor: %w", err)
	}
	ephemeralSK := nostr.GeneratePrivateKey()
	ephemeralPK, err := nostr.GetPublicKey(ephemeralSK)
	if err != nil {
		return nil, err
	}
	wrapped := &nostr.Event{
		PubKey:  ephemeralPK,
		Kind:    1059,
		Content: string(payload),
		Tags:    nostr.Tags{{"p", recipientPubkey}},
	}
	if err := wrapped.Sign(ephemeralSK); err != nil {
		return nil, err
	}
	return wrapped, nil
}

func (*FakeGiftWrapper) Unwrap(ctx context.Context, giftWrapEvent *nostr.Event) (*nostr.Event, error) {
	var rumor nostr.Event
	if err := json.Unmarshal([]byte(giftWrapEvent.Content), &rumor); err != nil {
		return nil, fmt.Errorf("unmarshal rumor: %w", err)
	}
	return &rumor, nil
}
