// Package welcome implements the Welcome handler: building and decoding
// kind-444 Welcome events, and resolving which relays a Welcome's
// gift-wrapped delivery should target.
package welcome

import (
	"encoding/hex"

	"github.com/nbd-wtf/go-nostr"

	"github.com/marmot-go/marmotgroup/internal/crypto"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
	"github.com/marmot-go/marmotgroup/internal/transport"
)

// CreateWelcomeRumor builds an unsigned kind-444 event wrapping welcome.
// Its id is precomputed over the canonical serialization, matching
// nostr's usual id derivation, even though the event carries no
// signature yet — it travels as a NIP-59 rumor until gift-wrapped.
func CreateWelcomeRumor(welcomeBytes []byte, keyPackageEventID, author string, groupRelays []string) *nostr.Event {
	event := &nostr.Event{
		PubKey:  author,
		Kind:    transport.KindForWelcome(),
		Content: crypto.B64Encode(welcomeBytes, false),
		Tags: nostr.Tags{
			transport.KeyPackageEventTag(keyPackageEventID),
			transport.RelaysTag(groupRelays),
			transport.EncodingTag("base64"),
		},
	}
	event.ID = event.GetID()
	return event
}

// GetWelcome decodes a kind-444 event's content back to MLS Welcome
// bytes, reading the encoding tag if present and defaulting to hex for
// backward compatibility with producers that predate the tag.
func GetWelcome(event *nostr.Event) ([]byte, error) {
	encoding := "hex"
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "encoding" {
			encoding = tag[1]
			break
		}
	}
	var raw []byte
	var err error
	switch encoding {
	case "base64":
		raw, err = crypto.B64Decode(event.Content, false)
	case "hex":
		raw, err = hex.DecodeString(event.Content)
	default:
		return nil, marmoterr.InvalidField("encoding", "must be base64 or hex")
	}
	if err != nil {
		return nil, marmoterr.Unreadable("decode welcome content", err)
	}
	return raw, nil
}

// ResolveInboxRelays applies the Welcome delivery path's relay priority:
// (1) an explicit caller-supplied list, (2) the relays tag on the
// key-package event that initiated the add, (3) the target group's
// relays.
func ResolveInboxRelays(explicit, keyPackageEventRelays, groupRelays []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	if len(keyPackageEventRelays) > 0 {
		return keyPackageEventRelays
	}
	return groupRelays
}
