package mls

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// ProposalType enumerates the proposal kinds this engine understands.
type ProposalType uint8

const (
	ProposalAdd ProposalType = 1
	ProposalRemove ProposalType = 2
)

// ProposalRef is the content-addressed reference to a proposal:
// sha256(type || sender_leaf || body), truncated to 16 bytes.
type ProposalRef [16]byte

// addBody/removeBody are the JSON-encoded proposal payloads. They're kept
// separate from LeafNode so a proposal can travel over the wire before the
// tree has a slot for it.
type addBody struct {
	Identity [32]byte `json:"identity"`
	SigPub   []byte   `json:"sig_pub"`
	InitPub  []byte   `json:"init_pub"`
}

type removeBody struct {
	LeafIndex int `json:"leaf_index"`
}

// Proposal is the in-memory decoded form of a pending proposal, keyed by
// its ref inside ClientState.UnappliedProposals.
type Proposal struct {
	Type       ProposalType
	SenderLeaf int
	Body       []byte
}

// wireProposal is the JSON form exchanged between members, either as a
// standalone proposal message or inlined inside a commit entry.
type wireProposal struct {
	Type       ProposalType `json:"type"`
	SenderLeaf int          `json:"sender_leaf"`
	Body       []byte       `json:"body"`
}

func computeProposalRef(t ProposalType, senderLeaf int, body []byte) ProposalRef {
	h := sha256.New()
	h.Write([]byte{byte(t)})
	var leafBuf [4]byte
	leafBuf[0] = byte(senderLeaf >> 24)
	leafBuf[1] = byte(senderLeaf >> 16)
	leafBuf[2] = byte(senderLeaf >> 8)
	leafBuf[3] = byte(senderLeaf)
	h.Write(leafBuf[:])
	h.Write(body)
	sum := h.Sum(nil)
	var ref ProposalRef
	copy(ref[:], sum[:16])
	return ref
}

func encodeWireProposal(p Proposal) ([]byte, error) {
	return json.Marshal(wireProposal{Type: p.Type, SenderLeaf: p.SenderLeaf, Body: p.Body})
}

func decodeWireProposal(data []byte) (Proposal, error) {
	var w wireProposal
	if err := json.Unmarshal(data, &w); err != nil {
		return Proposal{}, marmoterr.MLSProtocolError("cannot decode proposal message", err)
	}
	if w.Type != ProposalAdd && w.Type != ProposalRemove {
		return Proposal{}, marmoterr.MLSProtocolError(fmt.Sprintf("unknown proposal type %d", w.Type), nil)
	}
	return Proposal{Type: w.Type, SenderLeaf: w.SenderLeaf, Body: w.Body}, nil
}

func encodeAddBody(identity [32]byte, sigPub, initPub []byte) ([]byte, error) {
	return json.Marshal(addBody{Identity: identity, SigPub: sigPub, InitPub: initPub})
}

func decodeAddBody(body []byte) (addBody, error) {
	var a addBody
	if err := json.Unmarshal(body, &a); err != nil {
		return addBody{}, marmoterr.MLSProtocolError("cannot decode add proposal body", err)
	}
	return a, nil
}

func encodeRemoveBody(leafIndex int) ([]byte, error) {
	return json.Marshal(removeBody{LeafIndex: leafIndex})
}

func decodeRemoveBody(body []byte) (removeBody, error) {
	var r removeBody
	if err := json.Unmarshal(body, &r); err != nil {
		return removeBody{}, marmoterr.MLSProtocolError("cannot decode remove proposal body", err)
	}
	return r, nil
}
