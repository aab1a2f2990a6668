// Package transport defines the Nostr-shaped wire types and the
// Signer/Network collaborator interfaces the rest of marmotgroup is built
// against, plus an in-memory FakeNetwork for tests.
package transport

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/marmot-go/marmotgroup/internal/config"
)

// Signer is the account/identity collaborator: it knows the user's Nostr
// public key and can produce a validly-signed event from a draft. Its
// concrete default implementation lives in internal/identity; account
// management itself is out of scope here.
type Signer interface {
	GetPublicKey() string
	SignEvent(ctx context.Context, draft *nostr.Event) (*nostr.Event, error)
}

// PublishResult reports one relay's response to a publish attempt.
type PublishResult struct {
	OK      bool
	Message string
}

// Network is the relay-pool collaborator: publish, one-shot request,
// streaming subscription, and inbox-relay discovery (NIP-65 style). Its
// concrete implementation (connection pooling, reconnection, backoff) is
// out of scope; marmotgroup only consumes this interface.
type Network interface {
	Publish(ctx context.Context, relays []string, event *nostr.Event) (map[string]PublishResult, error)
	Request(ctx context.Context, relays []string, filters []nostr.Filter) ([]*nostr.Event, error)
	Subscribe(ctx context.Context, relays []string, filters []nostr.Filter) (<-chan *nostr.Event, error)
	UserInboxRelays(ctx context.Context, pubkey string) ([]string, error)
}

// BaseTags builds the tag set every event of this library emits nothing
// beyond — callers append kind-specific tags to this.
func BaseTags() nostr.Tags {
	return nostr.Tags{}
}

// HexCiphersuite renders a cipher-suite id in the "0xNNNN" form required
// on the wire by kind-443 events.
func HexCiphersuite(id int) string {
	return fmt.Sprintf("0x%04X", id)
}

// GroupTag builds the single mandatory tag on a kind-445 Group Event:
// h = nostr_group_id (hex).
func GroupTag(nostrGroupIDHex string) nostr.Tag {
	return nostr.Tag{"h", nostrGroupIDHex}
}

// KeyPackageEventTag builds the e-tag a Welcome uses to reference the
// key-package event it was built in response to.
func KeyPackageEventTag(keyPackageEventID string) nostr.Tag {
	return nostr.Tag{"e", keyPackageEventID}
}

// RelaysTag builds a relays tag listing one or more relay URLs.
func RelaysTag(relays []string) nostr.Tag {
	tag := make(nostr.Tag, 0, len(relays)+1)
	tag = append(tag, "relays")
	tag = append(tag, relays...)
	return tag
}

// EncodingTag declares how an event's content is framed: "base64"
// (preferred) or "hex" (legacy).
func EncodingTag(encoding string) nostr.Tag {
	return nostr.Tag{"encoding", encoding}
}

// KindForKeyPackage, KindForWelcome, KindForGroupEvent, KindForKeyPackage
// RelayList, and KindForDeletion mirror config's event-kind constants as
// int, the type of nostr.Event.Kind, so call sites building events don't
// juggle two numeric types.
func KindForKeyPackage() int          { return config.KindKeyPackage }
func KindForWelcome() int             { return config.KindWelcome }
func KindForGroupEvent() int          { return config.KindGroupEvent }
func KindForKeyPackageRelayList() int { return config.KindKeyPackageRelayList }
func KindForDeletion() int            { return config.KindDeletion }
