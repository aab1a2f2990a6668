package mls

import (
	"crypto/ed25519"
	"encoding/json"

	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// WelcomePayload carries everything a joiner needs to construct its own
// ClientState for a group it was just Added to: the full flat ratchet
// tree (so no sideband tree fetch is ever required), the current epoch's
// key schedule, and the group context. It never carries any other
// member's signature private key; the joiner supplies its own when
// reconstructing its state via NewStateFromWelcome.
type WelcomePayload struct {
	GroupID               [32]byte     `json:"group_id"`
	Epoch                 uint64       `json:"epoch"`
	Tree                  []*LeafNode  `json:"tree"`
	EpochSecret           []byte       `json:"epoch_secret"`
	ApplicationGeneration uint64       `json:"application_generation"`
	GroupContext          GroupContext `json:"group_context"`
	JoinerLeaf            int          `json:"joiner_leaf"`
}

// BuildWelcomePayload snapshots state for a Welcome addressed to the
// member occupying joinerLeaf. Called against the *post-commit* state,
// per §4.9's Add transaction.
func BuildWelcomePayload(state *ClientState, joinerLeaf int) WelcomePayload {
	return WelcomePayload{
		GroupID:               state.PrivateGroupID,
		Epoch:                 state.Epoch,
		Tree:                  state.Tree.RawNodes(),
		EpochSecret:           append([]byte(nil), state.KeySchedule.EpochSecret...),
		ApplicationGeneration: state.KeySchedule.ApplicationGeneration,
		GroupContext:          state.GroupContext,
		JoinerLeaf:            joinerLeaf,
	}
}

// EncodeWelcome renders a WelcomePayload to the bytes carried inside a
// kind-444 event's content (after the Welcome handler's own
// base64/hex framing, see internal/welcome).
func EncodeWelcome(payload WelcomePayload) ([]byte, error) {
	return json.Marshal(payload)
}

// DecodeWelcome reverses EncodeWelcome.
func DecodeWelcome(raw []byte) (WelcomePayload, error) {
	var payload WelcomePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return WelcomePayload{}, marmoterr.MLSProtocolError("cannot decode welcome payload", err)
	}
	return payload, nil
}

// NewStateFromWelcome reconstructs the joining member's ClientState from
// a decoded Welcome payload and the joiner's own leaf signature key.
func NewStateFromWelcome(payload WelcomePayload, sigPriv ed25519.PrivateKey) *ClientState {
	return &ClientState{
		PrivateGroupID: payload.GroupID,
		Epoch:          payload.Epoch,
		Tree:           TreeFromRawNodes(payload.Tree),
		OwnLeafIndex:   payload.JoinerLeaf,
		SigPriv:        sigPriv,
		KeySchedule: KeySchedule{
			EpochSecret:           payload.EpochSecret,
			ApplicationGeneration: payload.ApplicationGeneration,
		},
		UnappliedProposals: map[ProposalRef]Proposal{},
		GroupContext:       payload.GroupContext,
	}
}
