package welcome

import (
	"context"

	"github.com/nbd-wtf/go-nostr"

	"github.com/marmot-go/marmotgroup/internal/transport"
)

// GiftWrapper is the NIP-59 collaborator the Welcome handler hands its
// rumor to for delivery: it seals an unsigned rumor into a signed,
// ephemeral-keyed gift-wrap event addressed to recipientPubkey, and
// reverses that on receipt. Its concrete default implementation lives in
// internal/giftwrap; constructing and publishing the gift-wrap's
// encrypted seal layer is NIP-59/NIP-44 territory this package only
// consumes through the interface.
type GiftWrapper interface {
	Wrap(ctx context.Context, rumor *nostr.Event, recipientPubkey string) (*nostr.Event, error)
	Unwrap(ctx context.Context, giftWrap *nostr.Event) (*nostr.Event, error)
}

// Deliver wraps the Welcome rumor for recipientPubkey and publishes the
// resulting gift-wrap event to the resolved inbox relays via net.
func Deliver(ctx context.Context, wrapper GiftWrapper, net transport.Network, rumor *nostr.Event, recipientPubkey string, inboxRelays []string) (map[string]transport.PublishResult, error) {
	wrapped, err := wrapper.Wrap(ctx, rumor, recipientPubkey)
	if err != nil {
		return nil, err
	}
	return net.Publish(ctx, inboxRelays, wrapped)
}
