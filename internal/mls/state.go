// Package mls implements a self-contained MLS-like group state engine:
// epoch advancement, an HKDF-chained key schedule (including the
// exporter secret the envelope codec relies on), proposal/commit
// separation, and a flat ratchet tree. It stands in for the full RFC 9420
// primitive library (HPKE, path secrets, tree-hash authentication), which
// is out of scope here and owned by an external collaborator in a
// production deployment; this engine provides the same externally
// observable epoch/proposal/commit semantics the rest of the package
// tree is built against.
package mls

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"

	"github.com/marmot-go/marmotgroup/internal/groupdata"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// KeySchedule carries the chained epoch secret and a counter tracking how
// many times the application ratchet has advanced since the last commit.
// Rotating EpochSecret without bumping Epoch is exactly the "key schedule
// rotates even without an epoch bump" forward-secrecy mechanism: every
// successful application message derives a fresh EpochSecret, so a
// compromise of one message's key schedule position does not expose any
// earlier message.
type KeySchedule struct {
	EpochSecret           []byte
	ApplicationGeneration uint64
}

// GroupContext carries the group's Marmot Group Data, embedded under
// extension type config.MarmotGroupDataExtensionType.
type GroupContext struct {
	MarmotData groupdata.GroupData
}

// ClientState is one member's view of a single group's MLS state: the
// private group id, epoch counter, ratchet tree, key schedule, unapplied
// proposals (addressable by ProposalRef), and group context. It is the
// unit the State serializer (internal/mlsstate) projects to and from a
// store-friendly value.
type ClientState struct {
	PrivateGroupID     [32]byte
	Epoch              uint64
	Tree               *Tree
	OwnLeafIndex       int
	SigPriv            ed25519.PrivateKey
	KeySchedule        KeySchedule
	UnappliedProposals map[ProposalRef]Proposal
	GroupContext       GroupContext
}

// NewState creates a fresh group with the creator as its sole member, at
// epoch 0.
func NewState(groupID [32]byte, identity [32]byte, sigPriv ed25519.PrivateKey, sigPub ed25519.PublicKey, initPub []byte, marmotData groupdata.GroupData) (*ClientState, error) {
	epochSecret := make([]byte, 32)
	if _, err := rand.Read(epochSecret); err != nil {
		return nil, fmt.Errorf("generate epoch secret: %w", err)
	}
	return &ClientState{
		PrivateGroupID: groupID,
		Epoch:          0,
		Tree:           NewTree(&LeafNode{Identity: identity, SigPub: sigPub, InitPub: initPub}),
		OwnLeafIndex:   0,
		SigPriv:        sigPriv,
		KeySchedule:    KeySchedule{EpochSecret: epochSecret},
		UnappliedProposals: map[ProposalRef]Proposal{},
		GroupContext:   GroupContext{MarmotData: marmotData},
	}, nil
}

// ExportSecret derives a label/context-bound secret of the given length
// from the current epoch secret, matching the MLS exporter interface the
// envelope codec (§4.2) calls with label "nostr", context "nostr".
func (s *ClientState) ExportSecret(label, context string, length int) []byte {
	info := append([]byte(label), []byte(context)...)
	r := hkdf.New(sha256.New, s.KeySchedule.EpochSecret, nil, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(fmt.Sprintf("mls: hkdf export: %v", err))
	}
	return out
}

// RotateApplicationSecret advances the key schedule by one application
// ratchet step without touching Epoch. Both the sender (immediately after
// producing an application message) and the receiver (immediately after
// successfully decrypting one) must call this so their exporter secrets
// stay in lock-step for the next message.
func (s *ClientState) RotateApplicationSecret() {
	var genBuf [8]byte
	binary.BigEndian.PutUint64(genBuf[:], s.KeySchedule.ApplicationGeneration)
	r := hkdf.New(sha256.New, s.KeySchedule.EpochSecret, genBuf[:], []byte("marmotgroup-application-ratchet"))
	next := make([]byte, 32)
	if _, err := io.ReadFull(r, next); err != nil {
		panic(fmt.Sprintf("mls: hkdf application ratchet: %v", err))
	}
	s.KeySchedule.EpochSecret = next
	s.KeySchedule.ApplicationGeneration++
}

// advanceEpoch chains the epoch secret, binding in the post-mutation tree
// hash, and bumps Epoch. Called only from ApplyCommit, after every
// referenced proposal has been applied to the tree.
func (s *ClientState) advanceEpoch() {
	var epochBuf [8]byte
	binary.BigEndian.PutUint64(epochBuf[:], s.Epoch)
	salt := append(epochBuf[:], s.Tree.Hash()...)
	r := hkdf.New(sha256.New, s.KeySchedule.EpochSecret, salt, []byte("marmotgroup-epoch-advance"))
	next := make([]byte, 32)
	if _, err := io.ReadFull(r, next); err != nil {
		panic(fmt.Sprintf("mls: hkdf epoch advance: %v", err))
	}
	s.KeySchedule.EpochSecret = next
	s.KeySchedule.ApplicationGeneration = 0
	s.Epoch++
}

// MemberCount returns the number of occupied (non-blank) leaves.
func (s *ClientState) MemberCount() int {
	return len(s.Tree.ActiveLeaves())
}

// Propose registers a new pending proposal and returns both its reference
// and the wire bytes to publish as a standalone proposal message.
func (s *ClientState) Propose(t ProposalType, senderLeaf int, body []byte) (ProposalRef, []byte, error) {
	ref := computeProposalRef(t, senderLeaf, body)
	p := Proposal{Type: t, SenderLeaf: senderLeaf, Body: body}
	if s.UnappliedProposals == nil {
		s.UnappliedProposals = map[ProposalRef]Proposal{}
	}
	s.UnappliedProposals[ref] = p
	wireBytes, err := encodeWireProposal(p)
	if err != nil {
		return ProposalRef{}, nil, err
	}
	return ref, wireBytes, nil
}

// ProposeAdd registers a pending Add proposal for the given candidate.
func (s *ClientState) ProposeAdd(identity [32]byte, sigPub ed25519.PublicKey, initPub []byte, senderLeaf int) (ProposalRef, []byte, error) {
	body, err := encodeAddBody(identity, sigPub, initPub)
	if err != nil {
		return ProposalRef{}, nil, err
	}
	return s.Propose(ProposalAdd, senderLeaf, body)
}

// ProposeRemove registers a pending Remove proposal targeting leafIndex.
func (s *ClientState) ProposeRemove(leafIndex, senderLeaf int) (ProposalRef, []byte, error) {
	body, err := encodeRemoveBody(leafIndex)
	if err != nil {
		return ProposalRef{}, nil, err
	}
	return s.Propose(ProposalRemove, senderLeaf, body)
}

// ApplyProposalMessage decodes a standalone proposal message received
// from the transport and records it in UnappliedProposals without
// mutating the tree or advancing the epoch.
func (s *ClientState) ApplyProposalMessage(wireBytes []byte) (ProposalRef, error) {
	p, err := decodeWireProposal(wireBytes)
	if err != nil {
		return ProposalRef{}, err
	}
	ref := computeProposalRef(p.Type, p.SenderLeaf, p.Body)
	if s.UnappliedProposals == nil {
		s.UnappliedProposals = map[ProposalRef]Proposal{}
	}
	s.UnappliedProposals[ref] = p
	return ref, nil
}

// commitEntry is one proposal a Commit applies. Body is always inlined so
// a receiver who never saw a standalone proposal message for this ref
// (the single-admin add-member fast path, §4.9) can still apply the
// commit; a receiver who already holds the ref in UnappliedProposals uses
// its own copy instead, and the inlined body is then not consulted.
type commitEntry struct {
	Ref        ProposalRef  `json:"ref"`
	Type       ProposalType `json:"type"`
	SenderLeaf int          `json:"sender_leaf"`
	Body       []byte       `json:"body"`
}

type wireCommit struct {
	GroupID    [32]byte      `json:"group_id"`
	InnerEpoch uint64        `json:"inner_epoch"`
	Entries    []commitEntry `json:"entries"`
}

// BuildCommit builds a commit message over exactly the given pending
// proposal refs, which must already be registered in UnappliedProposals.
func (s *ClientState) BuildCommit(refs []ProposalRef) ([]byte, error) {
	entries := make([]commitEntry, 0, len(refs))
	for _, ref := range refs {
		p, ok := s.UnappliedProposals[ref]
		if !ok {
			return nil, marmoterr.MLSProtocolError("commit references a proposal this state has not seen", nil)
		}
		entries = append(entries, commitEntry{Ref: ref, Type: p.Type, SenderLeaf: p.SenderLeaf, Body: p.Body})
	}
	wc := wireCommit{GroupID: s.PrivateGroupID, InnerEpoch: s.Epoch, Entries: entries}
	return json.Marshal(wc)
}

// BuildCommitAll commits every currently pending proposal, in a
// deterministic (ref-sorted) order.
func (s *ClientState) BuildCommitAll() ([]byte, error) {
	refs := make([]ProposalRef, 0, len(s.UnappliedProposals))
	for ref := range s.UnappliedProposals {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return string(refs[i][:]) < string(refs[j][:])
	})
	return s.BuildCommit(refs)
}

// InnerEpoch reports the epoch a commit message targets, without applying
// it — used by the commit resolver to bucket candidate commits by epoch
// before attempting ApplyCommit.
func InnerEpoch(commitBytes []byte) (uint64, error) {
	var wc wireCommit
	if err := json.Unmarshal(commitBytes, &wc); err != nil {
		return 0, marmoterr.MLSProtocolError("cannot decode commit", err)
	}
	return wc.InnerEpoch, nil
}

// ApplyCommit applies every entry of a commit in order, then advances the
// epoch exactly once. It fails with MLSProtocolError if the commit does
// not target the state's current epoch, if an entry whose ref is not
// already in UnappliedProposals carries an inlined body that does not hash
// to that ref, or if any entry fails to apply to the tree.
func (s *ClientState) ApplyCommit(commitBytes []byte) error {
	var wc wireCommit
	if err := json.Unmarshal(commitBytes, &wc); err != nil {
		return marmoterr.MLSProtocolError("cannot decode commit", err)
	}
	if wc.InnerEpoch != s.Epoch {
		return marmoterr.MLSProtocolError(fmt.Sprintf("commit targets epoch %d, state is at epoch %d", wc.InnerEpoch, s.Epoch), nil)
	}

	resolved := make([]Proposal, len(wc.Entries))
	for i, e := range wc.Entries {
		if existing, ok := s.UnappliedProposals[e.Ref]; ok {
			resolved[i] = existing
			continue
		}
		computed := computeProposalRef(e.Type, e.SenderLeaf, e.Body)
		if computed != e.Ref {
			return marmoterr.MLSProtocolError("commit entry ref does not match its inlined body", nil)
		}
		resolved[i] = Proposal{Type: e.Type, SenderLeaf: e.SenderLeaf, Body: e.Body}
	}

	for i, p := range resolved {
		if err := s.applyResolvedProposal(p); err != nil {
			return err
		}
		delete(s.UnappliedProposals, wc.Entries[i].Ref)
	}

	s.advanceEpoch()
	return nil
}

func (s *ClientState) applyResolvedProposal(p Proposal) error {
	switch p.Type {
	case ProposalAdd:
		a, err := decodeAddBody(p.Body)
		if err != nil {
			return err
		}
		s.Tree.Add(&LeafNode{Identity: a.Identity, SigPub: a.SigPub, InitPub: a.InitPub})
		return nil
	case ProposalRemove:
		r, err := decodeRemoveBody(p.Body)
		if err != nil {
			return err
		}
		if !s.Tree.Remove(r.LeafIndex) {
			return marmoterr.MLSProtocolError(fmt.Sprintf("remove proposal targets blank or out-of-range leaf %d", r.LeafIndex), nil)
		}
		return nil
	default:
		return marmoterr.MLSProtocolError(fmt.Sprintf("unknown proposal type %d", p.Type), nil)
	}
}
