package store

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marmot-go/marmotgroup/internal/marmoterr"
	"github.com/marmot-go/marmotgroup/internal/mls"
	"github.com/marmot-go/marmotgroup/internal/mlsstate"
)

// GroupStore persists mls.ClientState values in a KV backend, keyed by
// the hex of the private group id, optionally namespaced by a prefix
// (multi-account setups sharing one backend). onUpdate, if set, fires
// after every mutating operation with the group id that changed.
type GroupStore struct {
	kv       KV
	prefix   string
	onUpdate func(groupIDHex string)
}

// NewGroupStore wraps kv. prefix and onUpdate are both optional; pass ""
// and nil respectively to opt out.
func NewGroupStore(kv KV, prefix string, onUpdate func(groupIDHex string)) *GroupStore {
	return &GroupStore{kv: kv, prefix: prefix, onUpdate: onUpdate}
}

func (s *GroupStore) key(groupID [32]byte) string {
	return s.prefix + hex.EncodeToString(groupID[:])
}

func (s *GroupStore) notify(groupIDHex string) {
	if s.onUpdate != nil {
		s.onUpdate(groupIDHex)
	}
}

// Add upserts a freshly-created state.
func (s *GroupStore) Add(state *mls.ClientState) error {
	return s.put(state)
}

// Update upserts an existing, mutated state. Identical to Add; both are
// upserts, matching the underlying KV's set semantics.
func (s *GroupStore) Update(state *mls.ClientState) error {
	return s.put(state)
}

func (s *GroupStore) put(state *mls.ClientState) error {
	value, err := mlsstate.Serialize(state)
	if err != nil {
		return fmt.Errorf("serialize group state: %w", err)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal group state: %w", err)
	}
	if err := s.kv.Set(s.key(state.PrivateGroupID), encoded); err != nil {
		return marmoterr.PersistenceError(err)
	}
	s.notify(hex.EncodeToString(state.PrivateGroupID[:]))
	return nil
}

// Get deserializes the state stored for groupID, or returns nil, nil if
// absent. cfg is passed to mlsstate.Deserialize and is not itself
// persisted; the returned state holds no reference to it.
func (s *GroupStore) Get(groupID [32]byte, cfg mlsstate.ClientConfig) (*mls.ClientState, error) {
	raw, ok, err := s.kv.Get(s.key(groupID))
	if err != nil {
		return nil, marmoterr.PersistenceError(err)
	}
	if !ok {
		return nil, nil
	}
	var value map[string]interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("unmarshal group state: %w", err)
	}
	state, _, err := mlsstate.Deserialize(value, cfg)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// List returns every state stored under this store's prefix, in
// unspecified order, each deserialized with the same cfg.
func (s *GroupStore) List(cfg mlsstate.ClientConfig) ([]*mls.ClientState, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		return nil, marmoterr.PersistenceError(err)
	}
	var out []*mls.ClientState
	for _, k := range keys {
		if !strings.HasPrefix(k, s.prefix) {
			continue
		}
		raw, ok, err := s.kv.Get(k)
		if err != nil {
			return nil, marmoterr.PersistenceError(err)
		}
		if !ok {
			continue
		}
		var value map[string]interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("unmarshal group state: %w", err)
		}
		state, _, err := mlsstate.Deserialize(value, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// Remove discards the state for groupID.
func (s *GroupStore) Remove(groupID [32]byte) error {
	if err := s.kv.Remove(s.key(groupID)); err != nil {
		return marmoterr.PersistenceError(err)
	}
	s.notify(hex.EncodeToString(groupID[:]))
	return nil
}

// Has reports whether groupID has a stored state.
func (s *GroupStore) Has(groupID [32]byte) (bool, error) {
	_, ok, err := s.kv.Get(s.key(groupID))
	if err != nil {
		return false, marmoterr.PersistenceError(err)
	}
	return ok, nil
}

// Count reports how many states are stored under this store's prefix.
func (s *GroupStore) Count() (int, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		return 0, marmoterr.PersistenceError(err)
	}
	n := 0
	for _, k := range keys {
		if strings.HasPrefix(k, s.prefix) {
			n++
		}
	}
	return n, nil
}

// Clear removes every state under this store's prefix. If prefix is
// empty, this clears the entire backend.
func (s *GroupStore) Clear() error {
	keys, err := s.kv.Keys()
	if err != nil {
		return marmoterr.PersistenceError(err)
	}
	if s.prefix == "" {
		if err := s.kv.Clear(); err != nil {
			return marmoterr.PersistenceError(err)
		}
		for _, k := range keys {
			s.notify(k)
		}
		return nil
	}
	for _, k := range keys {
		if strings.HasPrefix(k, s.prefix) {
			if err := s.kv.Remove(k); err != nil {
				return marmoterr.PersistenceError(err)
			}
			s.notify(strings.TrimPrefix(k, s.prefix))
		}
	}
	return nil
}
