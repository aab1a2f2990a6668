package envelope

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/marmot-go/marmotgroup/internal/groupdata"
	"github.com/marmot-go/marmotgroup/internal/mls"
	"github.com/marmot-go/marmotgroup/internal/transport"
)

func newTestState(t *testing.T) *mls.ClientState {
	t.Helper()
	sigPub, sigPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate sig key: %v", err)
	}
	var groupID, identity [32]byte
	copy(groupID[:], bytes.Repeat([]byte{0x01}, 32))
	copy(identity[:], bytes.Repeat([]byte{0x02}, 32))
	state, err := mls.NewState(groupID, identity, sigPriv, sigPub, []byte("init-pub-bytes-000000000000000"), groupdata.GroupData{})
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return state
}

func TestSealOpenRoundTrip(t *testing.T) {
	state := newTestState(t)
	plaintext := []byte(`{"kind":9,"content":"hello group"}`)

	event, err := Seal(state, "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if event.Kind != transport.KindForGroupEvent() {
		t.Errorf("Kind = %d, want %d", event.Kind, transport.KindForGroupEvent())
	}
	if len(event.Tags) != 1 || event.Tags[0][0] != "h" {
		t.Fatalf("expected exactly one h tag, got %v", event.Tags)
	}

	opened, err := Open(state, event)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Open = %q, want %q", opened, plaintext)
	}
}

func TestOpenFailsAfterKeyRotation(t *testing.T) {
	state := newTestState(t)
	event, err := Seal(state, "ab", []byte("first message"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	state.RotateApplicationSecret()
	if _, err := Open(state, event); err == nil {
		t.Fatal("expected decryption to fail once the key schedule has rotated")
	}
}

func TestSealUsesDisjointEphemeralIdentity(t *testing.T) {
	state := newTestState(t)
	ev1, err := Seal(state, "ab", []byte("one"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	ev2, err := Seal(state, "ab", []byte("two"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if ev1.PubKey == ev2.PubKey {
		t.Error("each envelope must be signed by a fresh ephemeral key")
	}
}
