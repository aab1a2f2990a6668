// Package mlsstate serializes an mls.ClientState to a plain value a
// key/value store can hold (anything JSON can represent), and restores it.
// Byte sequences are tagged "hex:"+hex so a store backend that only
// understands strings/numbers/maps never has to special-case []byte, and
// epoch-style counters are tagged "bigint:"+decimal so a future, larger
// epoch representation round-trips through the same store schema
// unchanged.
package mlsstate

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/marmot-go/marmotgroup/internal/groupdata"
	"github.com/marmot-go/marmotgroup/internal/marmoterr"
	"github.com/marmot-go/marmotgroup/internal/mls"
)

const (
	hexPrefix    = "hex:"
	bigintPrefix = "bigint:"
	mapDataType  = "Map"
)

// ClientConfig carries the collaborators the original state construction
// needs but that never survive serialization: the authentication service
// and crypto provider. It is not a ClientState field; callers reattach it
// out of band after Deserialize.
type ClientConfig struct {
	AuthService    interface{}
	CryptoProvider interface{}
}

func hexTag(b []byte) string {
	return hexPrefix + hex.EncodeToString(b)
}

func bigintTag(v uint64) string {
	return bigintPrefix + strconv.FormatUint(v, 10)
}

func fromHexTag(v string) ([]byte, error) {
	if !strings.HasPrefix(v, hexPrefix) {
		return nil, marmoterr.InvalidField("value", "expected hex: tag")
	}
	b, err := hex.DecodeString(strings.TrimPrefix(v, hexPrefix))
	if err != nil {
		return nil, marmoterr.InvalidField("value", err.Error())
	}
	return b, nil
}

func fromBigintTag(v string) (uint64, error) {
	if !strings.HasPrefix(v, bigintPrefix) {
		return 0, marmoterr.InvalidField("value", "expected bigint: tag")
	}
	return strconv.ParseUint(strings.TrimPrefix(v, bigintPrefix), 10, 64)
}

// mapEntry is one key/value pair of a wrapped Map, serialized as a
// [2]interface{} so non-string keys (here, proposal refs) survive JSON.
type mapEntry [2]interface{}

func wrapMap(entries []mapEntry) map[string]interface{} {
	values := make([]interface{}, len(entries))
	for i, e := range entries {
		values[i] = []interface{}{e[0], e[1]}
	}
	return map[string]interface{}{
		"dataType": mapDataType,
		"value":    values,
	}
}

// Serialize projects state into a plain value tree: nested
// map[string]interface{}/[]interface{}/string/float64, safe for any
// encoding (JSON, the Group Store's backing KV, etc).
func Serialize(state *mls.ClientState) (map[string]interface{}, error) {
	nodes := state.Tree.RawNodes()
	treeValue := make([]interface{}, len(nodes))
	for i, n := range nodes {
		if n == nil {
			treeValue[i] = nil
			continue
		}
		treeValue[i] = map[string]interface{}{
			"identity": hexTag(n.Identity[:]),
			"sig_pub":  hexTag(n.SigPub),
			"init_pub": hexTag(n.InitPub),
		}
	}

	refs := make([]mls.ProposalRef, 0, len(state.UnappliedProposals))
	for ref := range state.UnappliedProposals {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return string(refs[i][:]) < string(refs[j][:]) })
	proposalEntries := make([]mapEntry, len(refs))
	for i, ref := range refs {
		p := state.UnappliedProposals[ref]
		proposalEntries[i] = mapEntry{
			hexTag(ref[:]),
			map[string]interface{}{
				"type":        float64(p.Type),
				"sender_leaf": float64(p.SenderLeaf),
				"body":        hexTag(p.Body),
			},
		}
	}

	groupDataEncoded, err := groupdata.Encode(state.GroupContext.MarmotData)
	var groupContextValue interface{}
	if err != nil {
		// A group created before its Marmot Group Data satisfied every
		// invariant (should not happen in practice) still must round-trip
		// structurally; fall back to a nil marker rather than fail a save.
		groupContextValue = nil
	} else {
		groupContextValue = map[string]interface{}{"marmot_data": hexTag(groupDataEncoded)}
	}

	return map[string]interface{}{
		"private_group_id": hexTag(state.PrivateGroupID[:]),
		"epoch":             bigintTag(state.Epoch),
		"own_leaf_index":    float64(state.OwnLeafIndex),
		"sig_priv":          hexTag(state.SigPriv),
		"key_schedule": map[string]interface{}{
			"epoch_secret":           hexTag(state.KeySchedule.EpochSecret),
			"application_generation": bigintTag(state.KeySchedule.ApplicationGeneration),
		},
		"unapplied_proposals": wrapMap(proposalEntries),
		"tree":                treeValue,
		"group_context":       groupContextValue,
	}, nil
}

// Deserialize inverts Serialize. cfg is not attached to the returned state
// (ClientState carries no such field); it is returned alongside purely so
// callers have a single call site to pull both out of.
func Deserialize(value map[string]interface{}, cfg ClientConfig) (*mls.ClientState, ClientConfig, error) {
	if err := sanityCheckFieldPresence(value,
		"private_group_id", "epoch", "own_leaf_index", "sig_priv",
		"key_schedule", "unapplied_proposals", "tree"); err != nil {
		return nil, cfg, err
	}

	groupIDBytes, err := fromHexTag(value["private_group_id"].(string))
	if err != nil {
		return nil, cfg, err
	}
	var groupID [32]byte
	copy(groupID[:], groupIDBytes)

	epoch, err := fromBigintTag(value["epoch"].(string))
	if err != nil {
		return nil, cfg, err
	}

	ownLeafIndex := int(value["own_leaf_index"].(float64))

	sigPrivBytes, err := fromHexTag(value["sig_priv"].(string))
	if err != nil {
		return nil, cfg, err
	}

	ksValue := value["key_schedule"].(map[string]interface{})
	epochSecret, err := fromHexTag(ksValue["epoch_secret"].(string))
	if err != nil {
		return nil, cfg, err
	}
	appGen, err := fromBigintTag(ksValue["application_generation"].(string))
	if err != nil {
		return nil, cfg, err
	}

	treeValue := value["tree"].([]interface{})
	nodes := make([]*mls.LeafNode, len(treeValue))
	for i, raw := range treeValue {
		if raw == nil {
			continue
		}
		nodeMap := raw.(map[string]interface{})
		identity, err := fromHexTag(nodeMap["identity"].(string))
		if err != nil {
			return nil, cfg, err
		}
		sigPub, err := fromHexTag(nodeMap["sig_pub"].(string))
		if err != nil {
			return nil, cfg, err
		}
		initPub, err := fromHexTag(nodeMap["init_pub"].(string))
		if err != nil {
			return nil, cfg, err
		}
		var id [32]byte
		copy(id[:], identity)
		nodes[i] = &mls.LeafNode{Identity: id, SigPub: ed25519.PublicKey(sigPub), InitPub: initPub}
	}

	proposals := map[mls.ProposalRef]mls.Proposal{}
	proposalsWrapped := value["unapplied_proposals"].(map[string]interface{})
	if proposalsWrapped["dataType"] != mapDataType {
		return nil, cfg, marmoterr.InvalidField("unapplied_proposals", "expected a wrapped Map")
	}
	for _, rawEntry := range proposalsWrapped["value"].([]interface{}) {
		entry := rawEntry.([]interface{})
		refBytes, err := fromHexTag(entry[0].(string))
		if err != nil {
			return nil, cfg, err
		}
		var ref mls.ProposalRef
		copy(ref[:], refBytes)

		pMap := entry[1].(map[string]interface{})
		body, err := fromHexTag(pMap["body"].(string))
		if err != nil {
			return nil, cfg, err
		}
		proposals[ref] = mls.Proposal{
			Type:       mls.ProposalType(pMap["type"].(float64)),
			SenderLeaf: int(pMap["sender_leaf"].(float64)),
			Body:       body,
		}
	}

	var marmotData groupdata.GroupData
	if gc, ok := value["group_context"].(map[string]interface{}); ok {
		encoded, err := fromHexTag(gc["marmot_data"].(string))
		if err != nil {
			return nil, cfg, err
		}
		marmotData, err = groupdata.Decode(encoded)
		if err != nil {
			return nil, cfg, err
		}
	}

	state := &mls.ClientState{
		PrivateGroupID: groupID,
		Epoch:          epoch,
		Tree:           mls.TreeFromRawNodes(nodes),
		OwnLeafIndex:   ownLeafIndex,
		SigPriv:        ed25519.PrivateKey(sigPrivBytes),
		KeySchedule: mls.KeySchedule{
			EpochSecret:           epochSecret,
			ApplicationGeneration: appGen,
		},
		UnappliedProposals: proposals,
		GroupContext:       mls.GroupContext{MarmotData: marmotData},
	}
	return state, cfg, nil
}

// sanityCheckFieldPresence is used by Deserialize to produce a readable error
// when a caller hands Deserialize a value missing an expected key, rather
// than a raw type assertion panic.
func sanityCheckFieldPresence(value map[string]interface{}, keys ...string) error {
	for _, k := range keys {
		if _, ok := value[k]; !ok {
			return fmt.Errorf("mlsstate: missing field %q", k)
		}
	}
	return nil
}
