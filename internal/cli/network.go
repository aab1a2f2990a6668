package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/marmot-go/marmotgroup/internal/transport"
)

// FileNetwork is the CLI's offline transport.Network: publishing appends
// the event to a flat JSON file instead of reaching a real relay, so a
// later marmotctl invocation — possibly run by a different party against
// the same file, standing in for a shared relay — can pick up what an
// earlier invocation produced. This mirrors the teacher's flat-file state
// exchange (committed .mlsgit/ state read back on the next checkout)
// adapted to a multi-party event log instead of a single group blob.
//
// Every method reloads from disk and, for Publish, re-saves before
// returning: there is no in-memory cache to go stale across the separate
// processes that actually use this type.
type FileNetwork struct {
	mu   sync.Mutex
	path string
}

// NewFileNetwork returns a FileNetwork persisting to path, which need not
// exist yet.
func NewFileNetwork(path string) *FileNetwork {
	return &FileNetwork{path: path}
}

func (n *FileNetwork) load() ([]*nostr.Event, error) {
	data, err := os.ReadFile(n.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var events []*nostr.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode network file %s: %w", n.path, err)
	}
	return events, nil
}

func (n *FileNetwork) save(events []*nostr.Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(n.path, data, 0o644)
}

// Publish implements transport.Network: every relay in relays is reported
// as acknowledging, since the shared file itself stands in for the whole
// relay set.
func (n *FileNetwork) Publish(ctx context.Context, relays []string, event *nostr.Event) (map[string]transport.PublishResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	events, err := n.load()
	if err != nil {
		return nil, err
	}
	events = append(events, event)
	if err := n.save(events); err != nil {
		return nil, err
	}

	results := make(map[string]transport.PublishResult, len(relays))
	for _, r := range relays {
		results[r] = transport.PublishResult{OK: true}
	}
	return results, nil
}

func (n *FileNetwork) Request(ctx context.Context, relays []string, filters []nostr.Filter) ([]*nostr.Event, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	events, err := n.load()
	if err != nil {
		return nil, err
	}
	var out []*nostr.Event
	for _, e := range events {
		if matchesAny(e, filters) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Subscribe returns every already-published event matching filters on an
// already-closed channel: marmotctl is a batch tool, not a long-running
// daemon, so there is never a live tail to deliver.
func (n *FileNetwork) Subscribe(ctx context.Context, relays []string, filters []nostr.Filter) (<-chan *nostr.Event, error) {
	past, err := n.Request(ctx, relays, filters)
	if err != nil {
		return nil, err
	}
	ch := make(chan *nostr.Event, len(past))
	for _, e := range past {
		ch <- e
	}
	close(ch)
	return ch, nil
}

// UserInboxRelays always returns nil: this offline transport has no NIP-65
// discovery, so callers must supply inbox relays explicitly (marmotctl's
// --inbox-relays flag).
func (n *FileNetwork) UserInboxRelays(ctx context.Context, pubkey string) ([]string, error) {
	return nil, nil
}

// LatestGiftWrapFor returns the most recently published kind-1059 event
// addressed to recipientPubkey via a "p" tag, or ok=false if none exists
// yet. Used by the invite command to recover the Welcome it just
// published for writing out to a file.
func (n *FileNetwork) LatestGiftWrapFor(recipientPubkey string) (*nostr.Event, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	events, err := n.load()
	if err != nil {
		return nil, false, err
	}
	var found *nostr.Event
	for _, ev := range events {
		if ev.Kind != 1059 {
			continue
		}
		for _, tag := range ev.Tags {
			if len(tag) >= 2 && tag[0] == "p" && tag[1] == recipientPubkey {
				if found == nil || ev.CreatedAt > found.CreatedAt {
					found = ev
				}
			}
		}
	}
	if found == nil {
		return nil, false, nil
	}
	return found, true, nil
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
