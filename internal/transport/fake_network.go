package transport

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// FakeNetwork is an in-memory Network used by tests (cmd/marmotctl uses
// its own file-backed cli.FileNetwork instead). Published events are retained and replayed to
// Request/Subscribe callers whose filters match, modeling a single relay
// shared by every configured relay URL.
type FakeNetwork struct {
	mu        sync.Mutex
	events    []*nostr.Event
	inboxes   map[string][]string
	acksOff   map[string]bool // relay URL -> force ok=false
	listeners []chan *nostr.Event
}

// NewFakeNetwork returns an empty FakeNetwork.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{
		inboxes: map[string][]string{},
		acksOff: map[string]bool{},
	}
}

// SetInboxRelays configures the relays UserInboxRelays returns for pubkey.
func (n *FakeNetwork) SetInboxRelays(pubkey string, relays []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inboxes[pubkey] = relays
}

// FailAcksFor makes Publish report ok=false for the given relay URL,
// modeling an unreachable or misbehaving relay (used by S5-style tests).
func (n *FakeNetwork) FailAcksFor(relay string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acksOff[relay] = true
}

// Events returns every event ever published, for test assertions.
func (n *FakeNetwork) Events() []*nostr.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*nostr.Event, len(n.events))
	copy(out, n.events)
	return out
}

func (n *FakeNetwork) Publish(ctx context.Context, relays []string, event *nostr.Event) (map[string]PublishResult, error) {
	n.mu.Lock()
	n.events = append(n.events, event)
	results := make(map[string]PublishResult, len(relays))
	for _, r := range relays {
		if n.acksOff[r] {
			results[r] = PublishResult{OK: false, Message: "simulated relay failure"}
			continue
		}
		results[r] = PublishResult{OK: true}
	}
	listeners := append([]chan *nostr.Event(nil), n.listeners...)
	n.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- event:
		default:
		}
	}
	return results, nil
}

func (n *FakeNetwork) Request(ctx context.Context, relays []string, filters []nostr.Filter) ([]*nostr.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*nostr.Event
	for _, e := range n.events {
		if matchesAny(e, filters) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (n *FakeNetwork) Subscribe(ctx context.Context, relays []string, filters []nostr.Filter) (<-chan *nostr.Event, error) {
	ch := make(chan *nostr.Event, 64)
	n.mu.Lock()
	n.listeners = append(n.listeners, ch)
	past := make([]*nostr.Event, 0)
	for _, e := range n.events {
		if matchesAny(e, filters) {
			past = append(past, e)
		}
	}
	n.mu.Unlock()

	go func() {
		for _, e := range past {
			ch <- e
		}
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (n *FakeNetwork) UserInboxRelays(ctx context.Context, pubkey string) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inboxes[pubkey], nil
}

func matchesAny(e *nostr.Event, filters []nostr.Filter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(e) {
			return true
		}
	}
	return false
}
