package keypackage

import (
	"encoding/hex"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/marmot-go/marmotgroup/internal/crypto"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
	"github.com/marmot-go/marmotgroup/internal/transport"
)

// EventOptions parameterizes CreateKeyPackageEvent.
type EventOptions struct {
	Relays   []string
	Client   string   // optional; omitted from tags if empty
	Encoding string   // "base64" (default) or "hex"
}

// CreateKeyPackageEvent produces a draft (unsigned) kind-443 event
// announcing kp. It refuses to emit if the credential embedded in kp does
// not match pubkey, since the key package would then assert an identity
// the caller does not hold.
func CreateKeyPackageEvent(kp KeyPackage, pubkey string, opts EventOptions) (*nostr.Event, error) {
	identityHex := hex.EncodeToString(kp.Public.Credential.Identity[:])
	if identityHex != pubkey {
		return nil, marmoterr.InvalidPublicKey("credential identity does not match the signing pubkey")
	}

	encoding := opts.Encoding
	if encoding == "" {
		encoding = "base64"
	}

	encoded, err := EncodePublic(kp.Public)
	if err != nil {
		return nil, fmt.Errorf("encode public key package: %w", err)
	}

	var content string
	switch encoding {
	case "base64":
		content = crypto.B64Encode(encoded, false)
	case "hex":
		content = hex.EncodeToString(encoded)
	default:
		return nil, marmoterr.InvalidField("encoding", "must be base64 or hex")
	}

	tags := nostr.Tags{
		{"mls_protocol_version", "1.0"},
		{"mls_ciphersuite", transport.HexCiphersuite(int(kp.Public.Ciphersuite))},
	}
	extTag := nostr.Tag{"mls_extensions"}
	for _, e := range AdvertisedExtensionTypes(kp.Public) {
		extTag = append(extTag, transport.HexCiphersuite(int(e)))
	}
	tags = append(tags, extTag)
	if len(opts.Relays) > 0 {
		tags = append(tags, transport.RelaysTag(opts.Relays))
	}
	if opts.Client != "" {
		tags = append(tags, nostr.Tag{"client", opts.Client})
	}
	tags = append(tags, transport.EncodingTag(encoding))

	return &nostr.Event{
		PubKey:  pubkey,
		Kind:    transport.KindForKeyPackage(),
		Content: content,
		Tags:    tags,
	}, nil
}

// DecodeKeyPackageEvent reverses CreateKeyPackageEvent, reading the
// encoding tag (defaulting to hex for backward compatibility, per the
// Welcome handler's own default) to frame the content before decoding.
func DecodeKeyPackageEvent(event *nostr.Event) (PublicPackage, error) {
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
		return PublicPackage{}, marmoterr.InvalidField("encoding", "must be base64 or hex")
	}
	if err != nil {
		return PublicPackage{}, marmoterr.Unreadable("decode key package content", err)
	}
	return DecodePublic(raw)
}

// DeleteEventOptions parameterizes CreateDeleteKeyPackageEvent.
type DeleteEventOptions struct {
	// EventIDs lists the kind-443 event ids to retract by id alone.
	EventIDs []string
	// Events optionally supplies full events for the ids above (or more);
	// each must actually be kind 443 or the call fails.
	Events []*nostr.Event
}

// CreateDeleteKeyPackageEvent builds a draft kind-5 deletion event
// retracting the given key-package events. Full events supplied in
// opts.Events are checked to actually be kind 443; bare id strings in
// opts.EventIDs are trusted as-is.
func CreateDeleteKeyPackageEvent(pubkey string, opts DeleteEventOptions) (*nostr.Event, error) {
	tags := nostr.Tags{{"k", "443"}}
	seen := map[string]bool{}

	for _, ev := range opts.Events {
		if ev.Kind != transport.KindForKeyPackage() {
			return nil, marmoterr.InvalidField("events", fmt.Sprintf("event %s is kind %d, not 443", ev.ID, ev.Kind))
		}
		if !seen[ev.ID] {
			tags = append(tags, nostr.Tag{"e", ev.ID})
			seen[ev.ID] = true
		}
	}
	for _, id := range opts.EventIDs {
		if !seen[id] {
			tags = append(tags, nostr.Tag{"e", id})
			seen[id] = true
		}
	}
	if len(tags) == 1 {
		return nil, marmoterr.InvalidField("events", "no key-package events supplied to retract")
	}

	return &nostr.Event{
		PubKey: pubkey,
		Kind:   transport.KindForDeletion(),
		Tags:   tags,
	}, nil
}
