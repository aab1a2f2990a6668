package transport

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestHexCiphersuite(t *testing.T) {
	if got := HexCiphersuite(1); got != "0x0001" {
		t.Errorf("HexCiphersuite(1) = %q, want 0x0001", got)
	}
}

func TestFakeNetworkPublishAndRequest(t *testing.T) {
	net := NewFakeNetwork()
	ev := &nostr.Event{Kind: KindForGroupEvent(), Content: "ciphertext", Tags: nostr.Tags{{"h", "abcd"}}}

	results, err := net.Publish(context.Background(), []string{"wss://relay.one"}, ev)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !results["wss://relay.one"].OK {
		t.Error("expected relay to ack")
	}

	got, err := net.Request(context.Background(), []string{"wss://relay.one"}, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Request returned %d events, want 1", len(got))
	}
}

func TestFakeNetworkFailAcksFor(t *testing.T) {
	net := NewFakeNetwork()
	net.FailAcksFor("wss://bad-relay")
	ev := &nostr.Event{Kind: KindForGroupEvent()}

	results, err := net.Publish(context.Background(), []string{"wss://bad-relay"}, ev)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if results["wss://bad-relay"].OK {
		t.Error("expected simulated relay failure to report ok=false")
	}
}

func TestFakeNetworkInboxRelays(t *testing.T) {
	net := NewFakeNetwork()
	net.SetInboxRelays("deadbeef", []string{"wss://inbox.example"})

	relays, err := net.UserInboxRelays(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("UserInboxRelays: %v", err)
	}
	if len(relays) != 1 || relays[0] != "wss://inbox.example" {
		t.Errorf("UserInboxRelays = %v, want [wss://inbox.example]", relays)
	}
}
