// Package group implements the group engine (§4.8) and commit resolver
// (§4.9): the per-group state machine driving createGroup,
// sendApplicationRumor, addMember, and the batch ingest of kind-445
// events. It is the integration point for internal/mls (the key-schedule
// and proposal/commit engine), internal/envelope (§4.2 sealing),
// internal/keypackage and internal/welcome (the Add transaction), and
// internal/store (persistence).
package group

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/marmot-go/marmotgroup/internal/config"
	"github.com/marmot-go/marmotgroup/internal/envelope"
	"github.com/marmot-go/marmotgroup/internal/groupdata"
	"github.com/marmot-go/marmotgroup/internal/keypackage"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
	"github.com/marmot-go/marmotgroup/internal/mls"
	"github.com/marmot-go/marmotgroup/internal/mlsstate"
	"github.com/marmot-go/marmotgroup/internal/store"
	"github.com/marmot-go/marmotgroup/internal/transport"
	"github.com/marmot-go/marmotgroup/internal/welcome"
)

// CreateOptions parameterizes CreateGroup; zero values take the embedded
// Marmot Group Data's own documented defaults.
type CreateOptions struct {
	Description  string
	AdminPubkeys []string
	Relays       []string
}

// Engine drives one group's state machine: createGroup puts it in
// Active(0); applying a commit advances it to Active(n+1); Remove moves
// it to the terminal Removed state, after which every operation fails
// GroupNotFound (§4.8).
type Engine struct {
	state      *mls.ClientState
	store      *store.GroupStore
	net        transport.Network
	cfg        mlsstate.ClientConfig
	selfPubkey string
	removed    bool
}

// NewEngine wraps an already-constructed state (typically loaded via
// store.GroupStore.Get) with the collaborators its operations need.
// selfPubkey is the long-lived Nostr identity used to author Welcome
// rumors during AddMember; it is never used to sign group-event
// envelopes, which always use a fresh ephemeral key (§4.2).
func NewEngine(state *mls.ClientState, groupStore *store.GroupStore, net transport.Network, cfg mlsstate.ClientConfig, selfPubkey string) *Engine {
	return &Engine{state: state, store: groupStore, net: net, cfg: cfg, selfPubkey: selfPubkey}
}

// CreateGroup generates a fresh MLS client state with the creator as
// sole member and embedded Marmot Group Data, persists it, and returns
// an Engine driving it from Active(0).
func CreateGroup(
	identity [32]byte,
	sigPriv ed25519.PrivateKey,
	sigPub ed25519.PublicKey,
	initPub []byte,
	name string,
	opts CreateOptions,
	groupStore *store.GroupStore,
	net transport.Network,
	cfg mlsstate.ClientConfig,
	selfPubkey string,
) (*Engine, [32]byte, error) {
	var groupID [32]byte
	if _, err := rand.Read(groupID[:]); err != nil {
		return nil, [32]byte{}, fmt.Errorf("generate group id: %w", err)
	}

	data := groupdata.GroupData{
		Version:      config.MarmotGroupDataVersion,
		NostrGroupID: groupID,
		Name:         name,
		Description:  opts.Description,
		AdminPubkeys: opts.AdminPubkeys,
		Relays:       opts.Relays,
	}

	clientState, err := mls.NewState(groupID, identity, sigPriv, sigPub, initPub, data)
	if err != nil {
		return nil, [32]byte{}, err
	}

	e := &Engine{state: clientState, store: groupStore, net: net, cfg: cfg, selfPubkey: selfPubkey}
	if err := e.persist(); err != nil {
		return nil, [32]byte{}, err
	}
	return e, groupID, nil
}

func (e *Engine) persist() error {
	return e.store.Update(e.state)
}

func (e *Engine) ensureActive() error {
	if e.removed {
		return marmoterr.GroupNotFound(hex.EncodeToString(e.state.PrivateGroupID[:]))
	}
	return nil
}

// State returns the engine's current in-memory client state. Callers
// must not mutate it directly; go through the engine's operations so the
// forward-secrecy persistence invariant (every state-mutating call
// persists before returning) always holds.
func (e *Engine) State() *mls.ClientState {
	return e.state
}

// GroupRelays reads the group's relay list off its embedded Marmot
// Group Data: the publish target for every group-scoped event.
func (e *Engine) GroupRelays() []string {
	return e.state.GroupContext.MarmotData.Relays
}

// Remove transitions the engine to the terminal Removed state and drops
// its persisted state. Every subsequent operation fails GroupNotFound.
func (e *Engine) Remove() error {
	if err := e.ensureActive(); err != nil {
		return err
	}
	e.removed = true
	return e.store.Remove(e.state.PrivateGroupID)
}

// SendApplicationRumor serializes rumor to UTF-8 JSON, wraps it as an MLS
// application message, seals it (§4.2) under the current exporter
// secret, rotates the key schedule for forward secrecy, persists the
// advanced state, and only then publishes to the group's relays.
//
// The seal happens before the rotation (not after, as a naive reading of
// "create then rotate then seal" would suggest): the receiving side opens
// the envelope under its own pre-rotation secret too, so both sides must
// encrypt/decrypt this message under the *same*, not-yet-rotated secret,
// and only advance afterward.
func (e *Engine) SendApplicationRumor(ctx context.Context, rumor *nostr.Event) error {
	if err := e.ensureActive(); err != nil {
		return err
	}

	rumorBytes, err := json.Marshal(rumor)
	if err != nil {
		return fmt.Errorf("marshal rumor: %w", err)
	}
	wireMessage, err := e.state.CreateApplicationMessage(rumorBytes)
	if err != nil {
		return err
	}

	groupIDHex := hex.EncodeToString(e.state.PrivateGroupID[:])
	event, err := envelope.Seal(e.state, groupIDHex, wireMessage)
	if err != nil {
		return err
	}

	e.state.RotateApplicationSecret()
	if err := e.persist(); err != nil {
		return err
	}

	relays := e.GroupRelays()
	if len(relays) == 0 {
		return marmoterr.NoRelaysAvailable()
	}
	if _, err := e.net.Publish(ctx, relays, event); err != nil {
		return fmt.Errorf("publish application message: %w", err)
	}
	return nil
}

// AddMember runs the Add-member transaction (§4.9):
//
//  1. decode the key-package event;
//  2. build an Add proposal and a Commit consuming it, applied locally so
//     the Commit can be sealed against the *new* post-commit state;
//  3. publish the sealed Commit to the group's relays and require at
//     least one relay acknowledgement;
//  4. only once that ack is in hand, gift-wrap the Welcome (§4.7) and
//     deliver it to the recipient's inbox relays.
//
// If the Commit publish is not acknowledged, AddMember returns NoAck and
// the Welcome is never handed to wrapper or net — a recipient can never
// receive a Welcome for a Commit no relay is known to have stored.
func (e *Engine) AddMember(ctx context.Context, wrapper welcome.GiftWrapper, keyPackageEvent *nostr.Event, inboxRelays []string) error {
	if err := e.ensureActive(); err != nil {
		return err
	}

	pub, err := keypackage.DecodeKeyPackageEvent(keyPackageEvent)
	if err != nil {
		return err
	}

	ref, _, err := e.state.ProposeAdd(pub.Credential.Identity, pub.SigPub, pub.InitPub, e.state.OwnLeafIndex)
	if err != nil {
		return err
	}
	commitBytes, err := e.state.BuildCommit([]mls.ProposalRef{ref})
	if err != nil {
		return err
	}

	if err := e.state.ApplyCommit(commitBytes); err != nil {
		return err
	}
	if err := e.persist(); err != nil {
		return err
	}

	joinerLeaf, ok := e.state.Tree.FindLeafByIdentity(pub.Credential.Identity)
	if !ok {
		return marmoterr.MLSProtocolError("committed add did not produce a leaf for the new member", nil)
	}

	commitWireMessage, err := mls.EncodeWireMessage(mls.WireCommit, commitBytes)
	if err != nil {
		return err
	}
	groupIDHex := hex.EncodeToString(e.state.PrivateGroupID[:])
	commitEvent, err := envelope.Seal(e.state, groupIDHex, commitWireMessage)
	if err != nil {
		return err
	}

	relays := e.GroupRelays()
	if len(relays) == 0 {
		return marmoterr.NoRelaysAvailable()
	}
	results, err := e.net.Publish(ctx, relays, commitEvent)
	if err != nil {
		return fmt.Errorf("publish commit: %w", err)
	}
	acked := false
	for _, r := range results {
		if r.OK {
			acked = true
			break
		}
	}
	if !acked {
		return marmoterr.NoAck(commitEvent.ID)
	}

	payload := mls.BuildWelcomePayload(e.state, joinerLeaf)
	welcomeBytes, err := mls.EncodeWelcome(payload)
	if err != nil {
		return err
	}
	recipientPubkey := hex.EncodeToString(pub.Credential.Identity[:])
	rumor := welcome.CreateWelcomeRumor(welcomeBytes, keyPackageEvent.ID, e.selfPubkey, e.GroupRelays())

	resolvedInboxes := welcome.ResolveInboxRelays(inboxRelays, relaysTag(keyPackageEvent), e.GroupRelays())
	if _, err := welcome.Deliver(ctx, wrapper, e.net, rumor, recipientPubkey, resolvedInboxes); err != nil {
		return fmt.Errorf("deliver welcome: %w", err)
	}
	return nil
}

// relaysTag reads the "relays" tag off an event, as used for both
// key-package and Welcome relay hints.
func relaysTag(event *nostr.Event) []string {
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "relays" {
			return tag[1:]
		}
	}
	return nil
}
